package hedging

import (
	"math"

	"optioncore/internal/events"
	"optioncore/internal/risk"
	"optioncore/internal/sizing"
)

// GammaScalpConfig tunes the gamma scalping engine.
type GammaScalpConfig struct {
	RebalanceThreshold       float64
	HedgeInstrumentVtSymbol  string
	HedgeInstrumentDelta     float64
	HedgeInstrumentMultiplier float64
}

// DefaultGammaScalpConfig mirrors the reference implementation's defaults.
func DefaultGammaScalpConfig() GammaScalpConfig {
	return GammaScalpConfig{
		RebalanceThreshold:        0.2,
		HedgeInstrumentVtSymbol:   "",
		HedgeInstrumentDelta:      1,
		HedgeInstrumentMultiplier: 10,
	}
}

// NewGammaScalpConfigFromMap builds a GammaScalpConfig from a loosely
// typed settings map, falling back to DefaultGammaScalpConfig's values
// for any missing key.
func NewGammaScalpConfigFromMap(m map[string]float64, hedgeSymbol string) GammaScalpConfig {
	c := DefaultGammaScalpConfig()
	if v, ok := m["rebalance_threshold"]; ok {
		c.RebalanceThreshold = v
	}
	if v, ok := m["hedge_instrument_delta"]; ok {
		c.HedgeInstrumentDelta = v
	}
	if v, ok := m["hedge_instrument_multiplier"]; ok {
		c.HedgeInstrumentMultiplier = v
	}
	if hedgeSymbol != "" {
		c.HedgeInstrumentVtSymbol = hedgeSymbol
	}
	return c
}

// ScalpResult is the outcome of one gamma-scalping check.
type ScalpResult struct {
	ShouldRebalance    bool
	Rejected           bool
	RejectReason       string
	RebalanceVolume    int
	RebalanceDirection sizing.Direction
	Instruction        sizing.Instruction
}

// GammaEngine rebalances a long-gamma book back toward delta-neutral once
// the drift exceeds RebalanceThreshold. It refuses to act at all when the
// book is not net long gamma: scalping a negative-gamma book would widen
// the exposure it is meant to control.
type GammaEngine struct {
	config GammaScalpConfig
}

// NewGammaEngine returns a gamma scalping engine using cfg.
func NewGammaEngine(cfg GammaScalpConfig) *GammaEngine {
	return &GammaEngine{config: cfg}
}

// CheckAndRebalance evaluates portfolioGreeks and returns a rebalancing
// instruction plus a GammaScalpEvent when one is warranted.
func (e *GammaEngine) CheckAndRebalance(pg risk.PortfolioGreeks, currentPrice float64) (ScalpResult, []events.DomainEvent) {
	cfg := e.config

	if pg.TotalGamma <= 0 {
		return ScalpResult{Rejected: true, RejectReason: "portfolio gamma is non-positive"}, nil
	}
	if cfg.HedgeInstrumentMultiplier <= 0 {
		return ScalpResult{Rejected: true, RejectReason: "invalid config: contract multiplier <= 0"}, nil
	}
	if cfg.HedgeInstrumentDelta == 0 {
		return ScalpResult{Rejected: true, RejectReason: "hedge instrument delta is zero"}, nil
	}
	if currentPrice <= 0 {
		return ScalpResult{Rejected: true, RejectReason: "current price <= 0"}, nil
	}

	portfolioDelta := pg.TotalDelta
	if math.Abs(portfolioDelta) <= cfg.RebalanceThreshold {
		return ScalpResult{}, nil
	}

	rawVolume := -portfolioDelta / (cfg.HedgeInstrumentDelta * cfg.HedgeInstrumentMultiplier)
	rebalanceVolume := int(math.Round(rawVolume))
	if rebalanceVolume == 0 {
		return ScalpResult{}, nil
	}

	direction := sizing.Long
	if rebalanceVolume < 0 {
		direction = sizing.Short
		rebalanceVolume = -rebalanceVolume
	}

	instr := sizing.Instruction{
		VtSymbol:  cfg.HedgeInstrumentVtSymbol,
		Direction: direction,
		Offset:    sizing.Open,
		Volume:    rebalanceVolume,
		Price:     currentPrice,
		Signal:    "gamma_scalp",
	}

	result := ScalpResult{
		ShouldRebalance:    true,
		RebalanceVolume:    rebalanceVolume,
		RebalanceDirection: direction,
		Instruction:        instr,
	}

	return result, []events.DomainEvent{events.GammaScalpEvent{
		RebalanceVolume:      rebalanceVolume,
		RebalanceDirection:   string(direction),
		PortfolioDeltaBefore: portfolioDelta,
		PortfolioGamma:       pg.TotalGamma,
		HedgeInstrument:      cfg.HedgeInstrumentVtSymbol,
	}}
}
