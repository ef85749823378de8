// Package hedging implements the delta hedging and gamma scalping
// engines: both watch portfolio-level Greeks and propose a single hedge
// instruction when exposure drifts outside a configured band.
package hedging

import (
	"fmt"
	"math"

	"optioncore/internal/events"
	"optioncore/internal/risk"
	"optioncore/internal/sizing"
)

// DeltaConfig tunes the delta hedging engine. Keys missing from the map
// fall back to DefaultDeltaConfig's values when built via
// NewDeltaConfigFromMap.
type DeltaConfig struct {
	TargetDelta               float64
	HedgingBand               float64
	HedgeInstrumentVtSymbol   string
	HedgeInstrumentDelta      float64
	HedgeInstrumentMultiplier float64
}

// DefaultDeltaConfig mirrors the reference implementation's defaults: a
// flat futures hedge instrument with delta 1 and a standard multiplier.
func DefaultDeltaConfig() DeltaConfig {
	return DeltaConfig{
		TargetDelta:               0,
		HedgingBand:               0.1,
		HedgeInstrumentVtSymbol:   "",
		HedgeInstrumentDelta:      1,
		HedgeInstrumentMultiplier: 10,
	}
}

// NewDeltaConfigFromMap builds a DeltaConfig from a loosely-typed
// settings map (as loaded from YAML), falling back to
// DefaultDeltaConfig's values for any missing key.
func NewDeltaConfigFromMap(m map[string]float64, hedgeSymbol string) DeltaConfig {
	d := DefaultDeltaConfig()
	if v, ok := m["target_delta"]; ok {
		d.TargetDelta = v
	}
	if v, ok := m["hedging_band"]; ok {
		d.HedgingBand = v
	}
	if v, ok := m["hedge_instrument_delta"]; ok {
		d.HedgeInstrumentDelta = v
	}
	if v, ok := m["hedge_instrument_multiplier"]; ok {
		d.HedgeInstrumentMultiplier = v
	}
	if hedgeSymbol != "" {
		d.HedgeInstrumentVtSymbol = hedgeSymbol
	}
	return d
}

// HedgeResult is the outcome of one delta-hedging check.
type HedgeResult struct {
	ShouldHedge    bool
	HedgeVolume    int
	HedgeDirection sizing.Direction
	Instruction    sizing.Instruction
	Reason         string
}

// DeltaEngine monitors portfolio delta exposure and, once it drifts
// outside HedgingBand around TargetDelta, proposes an order that drives
// the residual delta as close to TargetDelta as an integer lot count
// allows.
type DeltaEngine struct {
	config DeltaConfig
}

// NewDeltaEngine returns a delta hedging engine using cfg.
func NewDeltaEngine(cfg DeltaConfig) *DeltaEngine {
	return &DeltaEngine{config: cfg}
}

// CheckAndHedge evaluates portfolioGreeks against the configured band and
// returns a hedge instruction plus a HedgeExecutedEvent when one is
// warranted.
func (e *DeltaEngine) CheckAndHedge(pg risk.PortfolioGreeks, currentPrice float64) (HedgeResult, []events.DomainEvent) {
	cfg := e.config

	if cfg.HedgeInstrumentMultiplier <= 0 {
		return HedgeResult{Reason: "invalid config: contract multiplier <= 0"}, nil
	}
	if cfg.HedgeInstrumentDelta == 0 {
		return HedgeResult{Reason: "hedge instrument delta is zero"}, nil
	}
	if currentPrice <= 0 {
		return HedgeResult{Reason: "current price <= 0"}, nil
	}

	deltaDiff := pg.TotalDelta - cfg.TargetDelta
	if math.Abs(deltaDiff) <= cfg.HedgingBand {
		return HedgeResult{Reason: "delta deviation within tolerance band"}, nil
	}

	rawVolume := (cfg.TargetDelta - pg.TotalDelta) / (cfg.HedgeInstrumentDelta * cfg.HedgeInstrumentMultiplier)
	hedgeVolume := int(math.Round(rawVolume))
	if hedgeVolume == 0 {
		return HedgeResult{Reason: "hedge volume rounds to zero"}, nil
	}

	direction := sizing.Long
	if hedgeVolume < 0 {
		direction = sizing.Short
		hedgeVolume = -hedgeVolume
	}

	instr := sizing.Instruction{
		VtSymbol:  cfg.HedgeInstrumentVtSymbol,
		Direction: direction,
		Offset:    sizing.Open,
		Volume:    hedgeVolume,
		Price:     currentPrice,
		Signal:    "delta_hedge",
	}

	result := HedgeResult{
		ShouldHedge:    true,
		HedgeVolume:    hedgeVolume,
		HedgeDirection: direction,
		Instruction:    instr,
		Reason:         fmt.Sprintf("delta deviation %.4f exceeds band %v", deltaDiff, cfg.HedgingBand),
	}

	sign := 1.0
	if direction == sizing.Short {
		sign = -1.0
	}
	expectedDeltaAfter := pg.TotalDelta + float64(hedgeVolume)*cfg.HedgeInstrumentDelta*cfg.HedgeInstrumentMultiplier*sign

	return result, []events.DomainEvent{events.HedgeExecutedEvent{
		HedgeVolume:          hedgeVolume,
		HedgeDirection:       string(direction),
		PortfolioDeltaBefore: pg.TotalDelta,
		PortfolioDeltaAfter:  expectedDeltaAfter,
		HedgeInstrument:      cfg.HedgeInstrumentVtSymbol,
	}}
}
