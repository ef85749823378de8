// Package indicator computes per-bar technical indicators and writes
// them into an instrument's indicator snapshot. Implementations are
// pluggable: the strategy engine only depends on the Service interface,
// never on a specific indicator set.
package indicator

import "optioncore/internal/instrument"

// Service calculates indicators for a freshly-updated instrument. An
// implementation reads target.Bars and writes into target.Indicators; it
// must never panic on insufficient history, only skip the update.
type Service interface {
	CalculateBar(target *instrument.Target)
}

// MACDService computes MACD (dif/dea/macd_bar) and the underlying
// fast/slow EMA pair, writing "macd.dif", "macd.dea", "macd.macd_bar",
// "macd.prev_dif", "macd.prev_dea", "ema.fast", "ema.slow" into the
// instrument's indicator snapshot. The previous bar's dif/dea are kept
// alongside the current ones so a signal service can detect a cross
// without needing its own history.
type MACDService struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// DefaultMACDService mirrors the reference implementation's defaults
// (12/26/9).
func DefaultMACDService() *MACDService {
	return &MACDService{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9}
}

// minBars is the fewest closes needed before dif/dea are meaningful,
// mirroring the reference's slow_period + signal_period rule.
func (s *MACDService) minBars() int {
	return s.SlowPeriod + s.SignalPeriod
}

// CalculateBar updates target's MACD/EMA indicators from its current bar
// history, skipping silently when history is still too short.
func (s *MACDService) CalculateBar(target *instrument.Target) {
	if len(target.Bars) < s.minBars() {
		return
	}

	closes := make([]float64, len(target.Bars))
	for i, b := range target.Bars {
		closes[i] = b.Close
	}

	fastEMA := emaSeries(closes, s.FastPeriod)
	slowEMA := emaSeries(closes, s.SlowPeriod)

	difSeries := make([]float64, len(closes))
	for i := range difSeries {
		difSeries[i] = fastEMA[i] - slowEMA[i]
	}
	deaSeries := emaSeries(difSeries, s.SignalPeriod)

	dif := difSeries[len(difSeries)-1]
	dea := deaSeries[len(deaSeries)-1]
	macdBar := (dif - dea) * 2

	if target.Indicators == nil {
		target.Indicators = make(instrument.IndicatorSnapshot)
	}
	if prevDif, ok := target.Indicators["macd.dif"]; ok {
		target.Indicators["macd.prev_dif"] = prevDif
		target.Indicators["macd.prev_dea"] = target.Indicators["macd.dea"]
	}
	target.Indicators["macd.dif"] = dif
	target.Indicators["macd.dea"] = dea
	target.Indicators["macd.macd_bar"] = macdBar
	target.Indicators["ema.fast"] = fastEMA[len(fastEMA)-1]
	target.Indicators["ema.slow"] = slowEMA[len(slowEMA)-1]
}

// emaSeries computes the exponential moving average series over data
// with the recursive (non-adjusted) formula, seeded by data[0]: matches
// pandas' ewm(adjust=False) used by the reference implementation.
func emaSeries(data []float64, period int) []float64 {
	alpha := 2.0 / (float64(period) + 1)
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}
	return out
}
