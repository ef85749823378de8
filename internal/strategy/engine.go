// Package strategy wires every domain component (instrument/position
// aggregates, indicator and signal services, selectors, sizing, portfolio
// risk, the smart executor/scheduler, and delta/gamma hedging) into the
// per-bar flow the worker process drives.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"optioncore/internal/barpipeline"
	"optioncore/internal/events"
	"optioncore/internal/greeks"
	"optioncore/internal/hedging"
	"optioncore/internal/indicator"
	"optioncore/internal/instrument"
	"optioncore/internal/order"
	"optioncore/internal/position"
	"optioncore/internal/risk"
	"optioncore/internal/selector"
	"optioncore/internal/signal"
	"optioncore/internal/sizing"
)

// MarketPort is the subset of the gateway facade (C22) the strategy engine
// depends on: market reads and order dispatch, never a direct broker
// connection. The gateway implements this; the engine only ever sees the
// port.
type MarketPort interface {
	Subscribe(vtSymbol string)
	Unsubscribe(vtSymbol string)
	GetTick(vtSymbol string) (selector.Tick, bool)
	GetContractMeta(vtSymbol string) (selector.ContractMeta, bool)
	GetFutureCandidates(product string) []selector.Contract
	GetOptionCandidates(underlyingVtSymbol string) []selector.OptionQuote
	GetGreeksInputs(vtSymbol string) (greeks.Inputs, bool)
	GetAccountBalance() float64
	SendOrder(instr sizing.Instruction) (vtOrderID string, err error)
	CancelOrder(vtOrderID string)
}

// AutoSaver is invoked once per bar, after domain events are published. A
// real implementation (C18) only snapshots when enough wall-clock time has
// passed since the last save; the engine never reasons about that cadence
// itself.
type AutoSaver interface {
	MaybeSave(now time.Time) error
}

// Config tunes engine behavior; zero values fall back to the defaults the
// sub-services themselves apply.
type Config struct {
	Products                []string // underlying product codes tracked for rollover, e.g. "rb", "IF"
	RolloverTime            string   // "HH:MM", 24h clock; default "14:50"
	RiskThresholds          risk.Thresholds
	ContractMultiplier      map[string]float64 // vt_symbol -> multiplier; default 1 when absent
	HedgeInstrumentVtSymbol string
	UseScheduler            bool
	SchedulerBatchSize      int
	LiquidityMinVolume      float64
	LiquidityMinBidVolume   float64
	LiquidityMaxSpreadTicks float64

	// CountManualOpensTowardDailyCap: see position.Aggregate's field of the
	// same name, which this is forwarded into by NewEngine. Default false.
	CountManualOpensTowardDailyCap bool
}

func (c Config) rolloverTime() string {
	if c.RolloverTime == "" {
		return "14:50"
	}
	return c.RolloverTime
}

func (c Config) multiplierFor(vtSymbol string) float64 {
	if m, ok := c.ContractMultiplier[vtSymbol]; ok && m > 0 {
		return m
	}
	return 1
}

// Engine orchestrates one bar's worth of domain logic: instrument update,
// indicator calc, rollover, close signals, open signals, event publication
// and auto-save, in that order, per SPEC_FULL §4.12.
type Engine struct {
	cfg Config

	instruments *instrument.Aggregate
	positions   *position.Aggregate
	indicators  indicator.Service
	signals     signal.Service
	futureSel   *selector.FutureSelector
	optionSel   *selector.OptionSelector
	sizer       *sizing.Service
	riskAgg     *risk.Aggregator
	executor    *order.Executor
	scheduler   *order.Scheduler
	delta       *hedging.DeltaEngine
	gamma       *hedging.GammaEngine

	market   MarketPort
	bus      *events.DomainBus
	autoSave AutoSaver

	lastRolloverDate string
}

// NewEngine wires every sub-component. indicators/signals/scheduler/delta/
// gamma/autoSave may be nil, in which case that step of the per-bar flow is
// skipped entirely: a strategy variant that doesn't hedge, for instance,
// passes a nil delta/gamma engine.
func NewEngine(
	cfg Config,
	instruments *instrument.Aggregate,
	positions *position.Aggregate,
	indicators indicator.Service,
	signals signal.Service,
	futureSel *selector.FutureSelector,
	optionSel *selector.OptionSelector,
	sizer *sizing.Service,
	riskAgg *risk.Aggregator,
	executor *order.Executor,
	scheduler *order.Scheduler,
	delta *hedging.DeltaEngine,
	gamma *hedging.GammaEngine,
	market MarketPort,
	bus *events.DomainBus,
	autoSave AutoSaver,
) *Engine {
	positions.SetCountManualOpensTowardDailyCap(cfg.CountManualOpensTowardDailyCap)
	return &Engine{
		cfg: cfg, instruments: instruments, positions: positions,
		indicators: indicators, signals: signals,
		futureSel: futureSel, optionSel: optionSel,
		sizer: sizer, riskAgg: riskAgg,
		executor: executor, scheduler: scheduler,
		delta: delta, gamma: gamma,
		market: market, bus: bus, autoSave: autoSave,
	}
}

// ProductOf strips a contract symbol's trailing expiry digits, e.g.
// "rb2501" -> "rb", "IF2506" -> "IF".
func ProductOf(symbol string) string {
	i := len(symbol)
	for i > 0 && symbol[i-1] >= '0' && symbol[i-1] <= '9' {
		i--
	}
	return symbol[:i]
}

// ProcessWindow runs one complete bar cycle across every symbol in bars, in
// the order SPEC_FULL §4.12 fixes: instrument update, indicators, rollover,
// close signals, open signals, hedging, event publication, auto-save. It
// returns every domain event raised during the cycle, already published on
// bus.
func (e *Engine) ProcessWindow(now time.Time, bars map[string]barpipeline.Bar) []events.DomainEvent {
	var pending []events.DomainEvent

	updated := e.updateInstruments(bars)
	e.runIndicators(updated)
	pending = append(pending, e.checkRollover(now)...)
	pending = append(pending, e.processCloseSignals(updated)...)
	pending = append(pending, e.processOpenSignals(updated)...)
	pending = append(pending, e.runHedging()...)

	e.publish(pending)

	if e.autoSave != nil {
		_ = e.autoSave.MaybeSave(now)
	}

	return pending
}

// updateInstruments appends each bar to its instrument's history, skipping
// (and dropping) any bar that does not strictly advance that instrument's
// clock: the aggregate's history must stay monotonic in time.
func (e *Engine) updateInstruments(bars map[string]barpipeline.Bar) []string {
	var updated []string
	for vtSymbol, b := range bars {
		target := e.instruments.GetOrCreateInstrument(vtSymbol)
		if !target.LastUpdateTime.IsZero() && !b.Datetime.After(target.LastUpdateTime) {
			continue
		}
		e.instruments.UpdateBar(vtSymbol, b)
		updated = append(updated, vtSymbol)
	}
	return updated
}

func (e *Engine) runIndicators(updated []string) {
	if e.indicators == nil {
		return
	}
	for _, vtSymbol := range updated {
		target, ok := e.instruments.GetInstrument(vtSymbol)
		if !ok {
			continue
		}
		e.indicators.CalculateBar(target)
	}
}

// checkRollover recomputes the dominant contract for every configured
// product once per calendar day, at or after cfg.RolloverTime.
func (e *Engine) checkRollover(now time.Time) []events.DomainEvent {
	today := now.Format("2006-01-02")
	if e.lastRolloverDate == today {
		return nil
	}
	if now.Format("15:04") < e.cfg.rolloverTime() {
		return nil
	}
	e.lastRolloverDate = today

	var evs []events.DomainEvent
	for _, product := range e.cfg.Products {
		candidates := e.market.GetFutureCandidates(product)
		dominant, ok := e.futureSel.SelectDominant(candidates)
		if !ok {
			continue
		}
		old, hadOld := e.instruments.GetActiveContract(product)
		if hadOld && old == dominant.VtSymbol {
			continue
		}

		if hadOld {
			e.market.Unsubscribe(old)
		}
		e.market.Subscribe(dominant.VtSymbol)
		e.instruments.SetActiveContract(product, dominant.VtSymbol)

		evs = append(evs, events.RolloverEvent{Product: product, OldSymbol: old, NewSymbol: dominant.VtSymbol})
	}
	return evs
}

// closingDirection is the position side every strategy-managed option
// position carries: the sizing service only ever opens short (the
// strategy is a premium seller), so a close signal always closes a short.
const closingDirection = "short"

// processCloseSignals checks every position owned against each of the
// bar's updated underlyings and dispatches a close once a close signal
// fires and no close is already in flight.
func (e *Engine) processCloseSignals(updated []string) []events.DomainEvent {
	var evs []events.DomainEvent
	for _, vtSymbol := range updated {
		target, ok := e.instruments.GetInstrument(vtSymbol)
		if !ok {
			continue
		}
		for _, pos := range e.positions.GetPositionsByUnderlying(vtSymbol) {
			if e.positions.HasPendingClose(pos) {
				continue
			}
			reason, fire := e.signals.CheckCloseSignal(target, signal.PositionView{Direction: closingDirection, OpenPrice: pos.AvgPrice})
			if !fire {
				continue
			}

			tick, ok := e.market.GetTick(pos.VtSymbol)
			if !ok {
				continue
			}
			closePrice := (tick.BidPrice1 + tick.AskPrice1) / 2
			if closePrice <= 0 {
				continue
			}

			instr, ok := e.sizer.CalculateCloseVolume(sizing.PositionView{VtSymbol: pos.VtSymbol, Volume: pos.Volume, IsActive: pos.IsActive()}, closePrice, reason)
			if !ok {
				continue
			}

			evs = append(evs, e.dispatch(instr, false)...)
		}
	}
	return evs
}

// processOpenSignals checks each updated underlying's open signal and, on
// fire, runs the full selector -> liquidity -> risk -> sizing -> dispatch
// pipeline.
func (e *Engine) processOpenSignals(updated []string) []events.DomainEvent {
	var evs []events.DomainEvent
	for _, vtSymbol := range updated {
		target, ok := e.instruments.GetInstrument(vtSymbol)
		if !ok || !target.HasEnoughData() {
			continue
		}
		reason, fire := e.signals.CheckOpenSignal(target)
		if !fire {
			continue
		}

		optType := optionTypeForSignal(reason)
		candidates := e.market.GetOptionCandidates(vtSymbol)
		underlyingPrice := target.LatestClose()
		selected, ok := e.optionSel.SelectTarget(candidates, optType, underlyingPrice)
		if !ok {
			continue
		}

		tick, ok := e.market.GetTick(selected.VtSymbol)
		if !ok {
			continue
		}
		contractMeta, ok := e.market.GetContractMeta(selected.VtSymbol)
		if !ok {
			continue
		}
		if !selector.CheckLiquidity(tick, contractMeta, e.cfg.LiquidityMinVolume, e.cfg.LiquidityMinBidVolume, e.cfg.LiquidityMaxSpreadTicks) {
			continue
		}

		if !e.passesPreTradeRisk(selected.VtSymbol) {
			continue
		}

		openPrice := (tick.BidPrice1 + tick.AskPrice1) / 2
		if openPrice <= 0 {
			continue
		}

		currentPositions := make([]sizing.PositionView, 0, len(e.positions.GetActivePositions()))
		for _, p := range e.positions.GetActivePositions() {
			currentPositions = append(currentPositions, sizing.PositionView{VtSymbol: p.VtSymbol, Volume: p.Volume, IsActive: p.IsActive()})
		}

		instr, ok := e.sizer.CalculateOpenVolume(
			e.market.GetAccountBalance(), reason, selected.VtSymbol, openPrice,
			currentPositions,
			e.positions.GetGlobalDailyOpenVolume(), e.positions.GetDailyOpenVolume(selected.VtSymbol),
		)
		if !ok {
			continue
		}

		dispatched := e.dispatch(instr, true)
		if dispatched == nil {
			continue
		}
		e.positions.CreatePosition(selected.VtSymbol, vtSymbol, reason, instr.Volume)
		e.positions.RecordOpenUsage(selected.VtSymbol, instr.Volume, 0, 0)
		evs = append(evs, dispatched...)
	}
	return evs
}

// passesPreTradeRisk computes the portfolio Greeks that would result from
// adding one lot of candidateVtSymbol to the current book, and rejects the
// open if it would breach either the position-scope check or any
// portfolio-scope threshold.
func (e *Engine) passesPreTradeRisk(candidateVtSymbol string) bool {
	in, ok := e.market.GetGreeksInputs(candidateVtSymbol)
	if !ok {
		return false
	}
	g := greeks.Compute(in)

	if result := e.riskAgg.CheckPositionRisk(g, 1, e.cfg.multiplierFor(candidateVtSymbol)); !result.Passed {
		return false
	}

	entries := e.portfolioEntries()
	entries = append(entries, risk.PositionGreeksEntry{VtSymbol: candidateVtSymbol, Greeks: g, Volume: 1, Multiplier: e.cfg.multiplierFor(candidateVtSymbol)})
	snapshot := e.riskAgg.AggregatePortfolio(entries)

	t := e.cfg.RiskThresholds
	if t.PortfolioDeltaLimit > 0 && absf(snapshot.TotalDelta) > t.PortfolioDeltaLimit {
		return false
	}
	if t.PortfolioGammaLimit > 0 && absf(snapshot.TotalGamma) > t.PortfolioGammaLimit {
		return false
	}
	if t.PortfolioVegaLimit > 0 && absf(snapshot.TotalVega) > t.PortfolioVegaLimit {
		return false
	}
	return true
}

// PortfolioGreeks re-aggregates the live book's Greeks on demand, for
// callers outside the per-bar pipeline (the monitor snapshot writer).
func (e *Engine) PortfolioGreeks() risk.PortfolioGreeks {
	return e.riskAgg.AggregatePortfolio(e.portfolioEntries())
}

func (e *Engine) portfolioEntries() []risk.PositionGreeksEntry {
	var entries []risk.PositionGreeksEntry
	for _, p := range e.positions.GetActivePositions() {
		in, ok := e.market.GetGreeksInputs(p.VtSymbol)
		if !ok {
			continue
		}
		entries = append(entries, risk.PositionGreeksEntry{
			VtSymbol: p.VtSymbol, Greeks: greeks.Compute(in), Volume: p.Volume, Multiplier: e.cfg.multiplierFor(p.VtSymbol),
		})
	}
	return entries
}

// runHedging re-aggregates the live portfolio and asks the gamma engine,
// then the delta engine, whether a rebalance trade is due, dispatching
// directly through the executor: hedges are never split by the advanced
// scheduler. Gamma runs first since it targets delta-zero only for
// long-gamma books, after which the delta engine's own band check is the
// authoritative gate.
func (e *Engine) runHedging() []events.DomainEvent {
	if e.delta == nil && e.gamma == nil {
		return nil
	}
	snapshot := e.riskAgg.AggregatePortfolio(e.portfolioEntries())

	hedgeTick, ok := e.market.GetTick(e.cfg.HedgeInstrumentVtSymbol)
	if !ok {
		return nil
	}
	hedgePrice := (hedgeTick.BidPrice1 + hedgeTick.AskPrice1) / 2

	var evs []events.DomainEvent
	if e.gamma != nil {
		scalp, scalpEvs := e.gamma.CheckAndRebalance(snapshot, hedgePrice)
		evs = append(evs, scalpEvs...)
		if scalp.ShouldRebalance {
			evs = append(evs, e.dispatch(scalp.Instruction, false)...)
		}
	}
	if e.delta != nil {
		hedge, hedgeEvs := e.delta.CheckAndHedge(snapshot, hedgePrice)
		evs = append(evs, hedgeEvs...)
		if hedge.ShouldHedge {
			evs = append(evs, e.dispatch(hedge.Instruction, false)...)
		}
	}
	return evs
}

// dispatch sends instr to the broker, via the advanced scheduler when
// configured and the order is large enough to split, otherwise directly
// through the smart executor. It registers the resulting order with both
// the executor's timeout watch and the position aggregate's pending-order
// tracking. A nil return means the dispatch did not go through (the caller
// must not treat the instruction as filled or even submitted).
func (e *Engine) dispatch(instr sizing.Instruction, isOpen bool) []events.DomainEvent {
	if e.cfg.UseScheduler && e.scheduler != nil && e.cfg.SchedulerBatchSize > 0 && instr.Volume > e.cfg.SchedulerBatchSize {
		if _, err := e.scheduler.SubmitIceberg(instr, e.cfg.SchedulerBatchSize); err != nil {
			return nil
		}
		// Children are pulled and sent by the caller driving
		// GetPendingChildren/MarkChildSubmitted on each tick; nothing to
		// report yet, since no child order has been sent to the broker.
		return []events.DomainEvent{}
	}

	vtOrderID, err := e.market.SendOrder(instr)
	if err != nil || vtOrderID == "" {
		return nil
	}

	e.executor.RegisterOrder(vtOrderID, instr)
	e.positions.AddPendingOrder(&position.TrackedOrder{
		VtOrderID: vtOrderID, VtSymbol: instr.VtSymbol, IsOpen: isOpen, Volume: instr.Volume, Status: position.StatusSubmitting,
	})
	return []events.DomainEvent{}
}

func (e *Engine) publish(evs []events.DomainEvent) {
	if e.bus == nil {
		return
	}
	for _, ev := range evs {
		e.bus.Publish(ev)
	}
}

// CheckOrderTimeouts scans the executor for timed-out orders and cancels
// them through the market port, publishing one OrderTimeoutEvent per
// timeout. Called on a >=1Hz timer, independent of the bar cadence, per
// SPEC_FULL §5.
func (e *Engine) CheckOrderTimeouts(now time.Time) {
	cancelIDs, evs := e.executor.CheckTimeouts(now)
	for _, id := range cancelIDs {
		e.market.CancelOrder(id)
	}
	e.publish(evs)
}

// FlattenPosition forces a full close of vtSymbol regardless of the
// configured close signal, for C25's manual-override endpoint. It reuses
// the same sizing/dispatch pipeline processCloseSignals drives on a
// signal fire, so a forced flatten still goes through pending-close
// dedup, the executor's timeout watch, and the usual DomainEvent
// publication. Returns an error if the position is unknown, already flat,
// has a close already pending, or no tick is available to price it.
func (e *Engine) FlattenPosition(vtSymbol string) error {
	pos, ok := e.positions.GetPosition(vtSymbol)
	if !ok {
		return fmt.Errorf("no position for %s", vtSymbol)
	}
	if e.positions.HasPendingClose(pos) {
		return fmt.Errorf("close already pending for %s", vtSymbol)
	}

	tick, ok := e.market.GetTick(vtSymbol)
	if !ok {
		return fmt.Errorf("no tick available for %s", vtSymbol)
	}
	closePrice := (tick.BidPrice1 + tick.AskPrice1) / 2
	if closePrice <= 0 {
		return fmt.Errorf("invalid close price for %s", vtSymbol)
	}

	instr, ok := e.sizer.CalculateCloseVolume(sizing.PositionView{VtSymbol: pos.VtSymbol, Volume: pos.Volume, IsActive: pos.IsActive()}, closePrice, "manual_flatten")
	if !ok {
		return fmt.Errorf("position %s already flat", vtSymbol)
	}

	e.publish(e.dispatch(instr, false))
	return nil
}

// optionTypeForSignal maps a signal's direction to the option type the
// strategy sells: a bullish (long) signal sells an out-of-the-money put, a
// bearish (short) signal sells an out-of-the-money call. The strategy
// never buys options outright (sizing.Service only ever opens short).
func optionTypeForSignal(reason string) greeks.OptionType {
	if strings.Contains(reason, "short") {
		return greeks.Call
	}
	return greeks.Put
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
