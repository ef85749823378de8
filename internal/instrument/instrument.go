// Package instrument implements the read-only underlying aggregate: bar
// history and indicator-state snapshots per tracked symbol, plus the
// active-contract map used for rollover.
package instrument

import (
	"time"

	"optioncore/internal/barpipeline"
)

const (
	// maxBarHistory bounds in-memory bar retention per symbol, mirroring
	// the reference implementation's 500-point indicator-history cap.
	maxBarHistory = 500
	// minBarsForIndicators is the smallest history an indicator service
	// can safely compute against (30 bars, per the reference).
	minBarsForIndicators = 30
)

// IndicatorSnapshot is the opaque, strategy-defined indicator state
// attached to an instrument after each bar. Indicator services (C3) fill
// in whatever keys their strategy variant needs; the aggregate itself
// never interprets the contents.
type IndicatorSnapshot map[string]float64

// Target is one underlying's bar history and latest indicator state.
type Target struct {
	VtSymbol       string
	Bars           []barpipeline.Bar
	Indicators     IndicatorSnapshot
	LastUpdateTime time.Time
}

// AppendBar appends bar to the instrument's history, evicting the oldest
// entry once maxBarHistory is exceeded.
func (t *Target) AppendBar(bar barpipeline.Bar) {
	t.Bars = append(t.Bars, bar)
	if len(t.Bars) > maxBarHistory {
		t.Bars = t.Bars[len(t.Bars)-maxBarHistory:]
	}
	t.LastUpdateTime = bar.Datetime
}

// UpdateIndicators atomically replaces the instrument's indicator
// snapshot.
func (t *Target) UpdateIndicators(snap IndicatorSnapshot) { t.Indicators = snap }

// GetBarHistory returns the most recent n bars (fewer if history is
// shorter).
func (t *Target) GetBarHistory(n int) []barpipeline.Bar {
	if n <= 0 || n > len(t.Bars) {
		n = len(t.Bars)
	}
	return append([]barpipeline.Bar(nil), t.Bars[len(t.Bars)-n:]...)
}

// HasEnoughData reports whether the instrument has accumulated the
// minimum history an indicator calculation needs.
func (t *Target) HasEnoughData() bool { return len(t.Bars) >= minBarsForIndicators }

// LatestClose returns the most recent close, or 0 if no bars exist.
func (t *Target) LatestClose() float64 {
	if len(t.Bars) == 0 {
		return 0
	}
	return t.Bars[len(t.Bars)-1].Close
}

// Aggregate owns every tracked underlying's bar history and the
// product -> active-contract map used by the rollover check. It is a
// read-only-in-spirit aggregate: it stores market state but raises no
// domain events of its own.
type Aggregate struct {
	instruments     map[string]*Target
	activeContracts map[string]string // product -> vt_symbol
}

// NewAggregate returns an empty instrument aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{
		instruments:     make(map[string]*Target),
		activeContracts: make(map[string]string),
	}
}

// SetActiveContract records product's current dominant contract.
func (a *Aggregate) SetActiveContract(product, vtSymbol string) {
	a.activeContracts[product] = vtSymbol
}

// GetActiveContract returns product's dominant contract, if known.
func (a *Aggregate) GetActiveContract(product string) (string, bool) {
	s, ok := a.activeContracts[product]
	return s, ok
}

// GetAllActiveContracts returns every tracked product's dominant contract.
func (a *Aggregate) GetAllActiveContracts() []string {
	out := make([]string, 0, len(a.activeContracts))
	for _, s := range a.activeContracts {
		out = append(out, s)
	}
	return out
}

// GetInstrument looks up a tracked underlying by symbol.
func (a *Aggregate) GetInstrument(vtSymbol string) (*Target, bool) {
	t, ok := a.instruments[vtSymbol]
	return t, ok
}

// GetOrCreateInstrument returns the tracked underlying for vtSymbol,
// creating an empty one on first use.
func (a *Aggregate) GetOrCreateInstrument(vtSymbol string) *Target {
	t, ok := a.instruments[vtSymbol]
	if !ok {
		t = &Target{VtSymbol: vtSymbol, Indicators: make(IndicatorSnapshot)}
		a.instruments[vtSymbol] = t
	}
	return t
}

// UpdateBar appends bar to vtSymbol's history, creating the instrument if
// this is its first bar.
func (a *Aggregate) UpdateBar(vtSymbol string, bar barpipeline.Bar) *Target {
	t := a.GetOrCreateInstrument(vtSymbol)
	t.AppendBar(bar)
	return t
}

// GetAllSymbols returns every tracked underlying's symbol.
func (a *Aggregate) GetAllSymbols() []string {
	out := make([]string, 0, len(a.instruments))
	for s := range a.instruments {
		out = append(out, s)
	}
	return out
}

// HasInstrument reports whether vtSymbol is already tracked.
func (a *Aggregate) HasInstrument(vtSymbol string) bool {
	_, ok := a.instruments[vtSymbol]
	return ok
}

// HasEnoughData reports whether vtSymbol has accumulated enough bars for
// indicator computation.
func (a *Aggregate) HasEnoughData(vtSymbol string) bool {
	t, ok := a.instruments[vtSymbol]
	return ok && t.HasEnoughData()
}

// Clear wipes all tracked instruments (used before loading a snapshot).
func (a *Aggregate) Clear() {
	a.instruments = make(map[string]*Target)
}

// RestoreTarget installs t verbatim, overwriting any existing instrument for
// t.VtSymbol. Used when loading a persisted snapshot (C18).
func (a *Aggregate) RestoreTarget(t *Target) {
	if t.Indicators == nil {
		t.Indicators = make(IndicatorSnapshot)
	}
	a.instruments[t.VtSymbol] = t
}

// ActiveContractsMap returns a copy of the product -> vt_symbol map, for
// snapshot serialization.
func (a *Aggregate) ActiveContractsMap() map[string]string {
	out := make(map[string]string, len(a.activeContracts))
	for k, v := range a.activeContracts {
		out[k] = v
	}
	return out
}
