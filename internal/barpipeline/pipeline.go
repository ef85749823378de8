// Package barpipeline synthesizes tick data into fixed-size window bars,
// with a cross-symbol barrier: a window is only delivered once every
// tracked symbol has produced a bar for it.
package barpipeline

import "time"

// Tick is the subset of live market data the pipeline needs to build bars.
type Tick struct {
	VtSymbol  string
	LastPrice float64
	Volume    float64
	Datetime  time.Time
}

// Bar is one OHLCV candle for a single symbol over one window.
type Bar struct {
	VtSymbol string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Datetime time.Time // window start
}

// Callback receives one fully-assembled, barrier-synchronized window: one
// Bar per symbol that had activity during the window.
type Callback func(bars map[string]Bar)

type minuteAccumulator struct {
	bar       Bar
	minuteKey time.Time
	volStart  float64
}

// Pipeline assembles per-symbol 1-minute bars from ticks and groups them
// into window-minute bars (e.g. window=15 for a 15-minute bar), releasing
// a window only after every symbol currently being tracked has completed
// it — the same barrier PortfolioBarGenerator enforces upstream, so a
// strategy never observes a partial cross-symbol window.
type Pipeline struct {
	window   int
	callback Callback

	minuteAccs map[string]*minuteAccumulator
	windowBars map[string]Bar
	windowKey  time.Time
	trackedSet map[string]bool
}

// New returns a pipeline that fires callback once per window-minute
// boundary, once every tracked symbol has reported. window is expressed
// in minutes; window<=1 means "pass through 1-minute bars unaggregated".
func New(window int, callback Callback) *Pipeline {
	if window < 1 {
		window = 1
	}
	return &Pipeline{
		window:     window,
		callback:   callback,
		minuteAccs: make(map[string]*minuteAccumulator),
		windowBars: make(map[string]Bar),
		trackedSet: make(map[string]bool),
	}
}

// Track registers a symbol the pipeline must wait for before releasing a
// window. Symbols discovered only via incoming ticks are tracked
// implicitly, but explicit tracking lets a strategy declare its full
// universe up front so a quiet symbol doesn't stall every window forever.
func (p *Pipeline) Track(vtSymbol string) {
	p.trackedSet[vtSymbol] = true
}

func truncateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

func windowStart(minute time.Time, window int) time.Time {
	m := minute.Minute()
	aligned := (m / window) * window
	return time.Date(minute.Year(), minute.Month(), minute.Day(), minute.Hour(), aligned, 0, 0, minute.Location())
}

// HandleTick folds one tick into the in-progress 1-minute bar for its
// symbol, rolling the minute bar into the current window bar whenever the
// tick crosses a minute boundary, and releasing the window once every
// tracked symbol has a bar for it.
func (p *Pipeline) HandleTick(tick Tick) {
	p.trackedSet[tick.VtSymbol] = true
	minute := truncateToMinute(tick.Datetime)

	acc, ok := p.minuteAccs[tick.VtSymbol]
	if !ok || !acc.minuteKey.Equal(minute) {
		if ok {
			p.rollMinuteIntoWindow(tick.VtSymbol, acc.bar)
		}
		acc = &minuteAccumulator{
			minuteKey: minute,
			volStart:  tick.Volume,
			bar: Bar{
				VtSymbol: tick.VtSymbol,
				Open:     tick.LastPrice,
				High:     tick.LastPrice,
				Low:      tick.LastPrice,
				Close:    tick.LastPrice,
				Volume:   0,
				Datetime: minute,
			},
		}
		p.minuteAccs[tick.VtSymbol] = acc
	}

	if tick.LastPrice > acc.bar.High {
		acc.bar.High = tick.LastPrice
	}
	if tick.LastPrice < acc.bar.Low {
		acc.bar.Low = tick.LastPrice
	}
	acc.bar.Close = tick.LastPrice
	acc.bar.Volume = tick.Volume - acc.volStart
}

// HandleBars folds pre-built 1-minute bars (e.g. replayed from a gateway
// that already bars ticks) directly into the current window, bypassing
// per-tick accumulation. The whole batch is merged into trackedSet/
// windowBars before completeness is checked, so a batch introducing two or
// more previously-untracked symbols at once still waits for all of them
// rather than releasing as soon as the first is merged.
func (p *Pipeline) HandleBars(bars map[string]Bar) {
	for symbol := range bars {
		p.trackedSet[symbol] = true
	}
	for symbol, bar := range bars {
		p.mergeIntoWindow(symbol, bar)
	}
	if p.windowComplete() {
		p.releaseWindow()
	}
}

// rollMinuteIntoWindow merges one symbol's completed minute bar into the
// window and checks completeness immediately, since HandleTick only ever
// has one symbol's bar to fold in at a time.
func (p *Pipeline) rollMinuteIntoWindow(symbol string, minuteBar Bar) {
	p.mergeIntoWindow(symbol, minuteBar)
	if p.windowComplete() {
		p.releaseWindow()
	}
}

// mergeIntoWindow folds minuteBar into the current window bar for symbol,
// rolling to a new window key (releasing the prior window) if minuteBar
// belongs to a later window. It never checks barrier completeness itself;
// callers decide when to check, so a multi-symbol batch can merge
// everything before checking once.
func (p *Pipeline) mergeIntoWindow(symbol string, minuteBar Bar) {
	ws := windowStart(minuteBar.Datetime, p.window)

	if p.windowKey.IsZero() {
		p.windowKey = ws
	}
	if !ws.Equal(p.windowKey) {
		p.releaseWindow()
		p.windowKey = ws
	}

	existing, ok := p.windowBars[symbol]
	if !ok {
		p.windowBars[symbol] = Bar{
			VtSymbol: symbol,
			Open:     minuteBar.Open,
			High:     minuteBar.High,
			Low:      minuteBar.Low,
			Close:    minuteBar.Close,
			Volume:   minuteBar.Volume,
			Datetime: ws,
		}
	} else {
		if minuteBar.High > existing.High {
			existing.High = minuteBar.High
		}
		if minuteBar.Low < existing.Low {
			existing.Low = minuteBar.Low
		}
		existing.Close = minuteBar.Close
		existing.Volume += minuteBar.Volume
		p.windowBars[symbol] = existing
	}
}

func (p *Pipeline) windowComplete() bool {
	if len(p.trackedSet) == 0 {
		return false
	}
	for symbol := range p.trackedSet {
		if _, ok := p.windowBars[symbol]; !ok {
			return false
		}
	}
	return true
}

func (p *Pipeline) releaseWindow() {
	if len(p.windowBars) == 0 {
		return
	}
	out := p.windowBars
	p.windowBars = make(map[string]Bar)
	if p.callback != nil {
		p.callback(out)
	}
}

// Flush force-releases any partially-complete window, for shutdown paths
// where waiting on a quiet symbol would otherwise drop the last bars.
func (p *Pipeline) Flush() {
	p.releaseWindow()
}
