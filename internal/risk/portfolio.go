// Package risk aggregates per-position Greeks into portfolio-level
// exposure and gates new opens against both position- and portfolio-scope
// thresholds.
package risk

import (
	"fmt"
	"sync"
	"time"

	"optioncore/internal/events"
	"optioncore/internal/greeks"
)

// Thresholds bounds the absolute weighted Greeks exposure allowed at
// position and portfolio scope.
type Thresholds struct {
	PositionDeltaLimit  float64
	PositionGammaLimit  float64
	PositionVegaLimit   float64
	PortfolioDeltaLimit float64
	PortfolioGammaLimit float64
	PortfolioVegaLimit  float64
}

// CheckResult is the outcome of a pre-trade position-level Greeks check.
type CheckResult struct {
	Passed       bool
	RejectReason string
}

// PositionGreeksEntry is one active position's Greeks and sizing weight,
// as fed into AggregatePortfolio.
type PositionGreeksEntry struct {
	VtSymbol   string
	Greeks     greeks.Greeks
	Volume     int
	Multiplier float64
}

// PortfolioGreeks is a point-in-time aggregate snapshot across all active
// positions.
type PortfolioGreeks struct {
	TotalDelta    float64
	TotalGamma    float64
	TotalTheta    float64
	TotalVega     float64
	PositionCount int
	Timestamp     time.Time
}

// Aggregator performs pre-trade Greeks checks and portfolio aggregation,
// emitting GreeksRiskBreachEvent only on the transition from ok to
// breached per field (edge-triggered), not on every tick a breach
// persists — a steady over-limit exposure across N consecutive
// aggregations raises exactly one event, reducing alert noise for an
// operator who has already been notified and is working the position down.
type Aggregator struct {
	thresholds Thresholds
	bus        *events.DomainBus

	mu      sync.Mutex
	breached map[string]bool // "portfolio:delta" etc, current latched state
}

// NewAggregator returns an aggregator publishing breach transitions on
// bus; a field returning within bounds clears its latch without
// publishing anything.
func NewAggregator(thresholds Thresholds, bus *events.DomainBus) *Aggregator {
	return &Aggregator{
		thresholds: thresholds,
		bus:        bus,
		breached:   make(map[string]bool),
	}
}

// CheckPositionRisk validates that opening volume lots of a contract with
// the given Greeks and contract multiplier would not breach any
// position-scope threshold. A threshold of zero or below means unlimited
// (unconfigured) for that field, matching strategy.Engine's
// passesPreTradeRisk convention for the identical thresholds at portfolio
// scope, and config.Load's zero-value default for every RISK_*_LIMIT
// env var.
func (a *Aggregator) CheckPositionRisk(g greeks.Greeks, volume int, multiplier float64) CheckResult {
	weight := float64(volume) * multiplier
	weightedDelta := abs(g.Delta * weight)
	weightedGamma := abs(g.Gamma * weight)
	weightedVega := abs(g.Vega * weight)

	if a.thresholds.PositionDeltaLimit > 0 && weightedDelta > a.thresholds.PositionDeltaLimit {
		return CheckResult{Passed: false, RejectReason: fmt.Sprintf("delta limit exceeded: |%.4f| > %v", weightedDelta, a.thresholds.PositionDeltaLimit)}
	}
	if a.thresholds.PositionGammaLimit > 0 && weightedGamma > a.thresholds.PositionGammaLimit {
		return CheckResult{Passed: false, RejectReason: fmt.Sprintf("gamma limit exceeded: |%.4f| > %v", weightedGamma, a.thresholds.PositionGammaLimit)}
	}
	if a.thresholds.PositionVegaLimit > 0 && weightedVega > a.thresholds.PositionVegaLimit {
		return CheckResult{Passed: false, RejectReason: fmt.Sprintf("vega limit exceeded: |%.4f| > %v", weightedVega, a.thresholds.PositionVegaLimit)}
	}
	return CheckResult{Passed: true}
}

// AggregatePortfolio sums weighted Greeks across all active positions and
// publishes GreeksRiskBreachEvent for each field that newly crosses its
// portfolio-scope threshold since the previous call, and implicitly clears
// the latch for fields that have returned within bounds.
func (a *Aggregator) AggregatePortfolio(positions []PositionGreeksEntry) PortfolioGreeks {
	var totalDelta, totalGamma, totalTheta, totalVega float64
	for _, e := range positions {
		weight := float64(e.Volume) * e.Multiplier
		totalDelta += e.Greeks.Delta * weight
		totalGamma += e.Greeks.Gamma * weight
		totalTheta += e.Greeks.Theta * weight
		totalVega += e.Greeks.Vega * weight
	}

	snapshot := PortfolioGreeks{
		TotalDelta:    totalDelta,
		TotalGamma:    totalGamma,
		TotalTheta:    totalTheta,
		TotalVega:     totalVega,
		PositionCount: len(positions),
		Timestamp:     time.Now(),
	}

	a.checkEdge("delta", totalDelta, a.thresholds.PortfolioDeltaLimit)
	a.checkEdge("gamma", totalGamma, a.thresholds.PortfolioGammaLimit)
	a.checkEdge("vega", totalVega, a.thresholds.PortfolioVegaLimit)

	return snapshot
}

// checkEdge treats limit <= 0 as unlimited (unconfigured), same as
// CheckPositionRisk, so a zero-valued RISK_PORTFOLIO_*_LIMIT env var never
// trips on the first nonzero Greek.
func (a *Aggregator) checkEdge(field string, value, limit float64) {
	key := "portfolio:" + field
	breached := limit > 0 && abs(value) > limit

	a.mu.Lock()
	wasBreached := a.breached[key]
	a.breached[key] = breached
	a.mu.Unlock()

	if breached && !wasBreached && a.bus != nil {
		a.bus.Publish(events.GreeksRiskBreachEvent{
			Scope:     "portfolio",
			Field:     field,
			Value:     value,
			Threshold: limit,
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
