// Package position implements the strategy-owned position aggregate: it
// tracks option positions and their pending orders, detects manual
// broker-side intervention, and enforces/reports daily open-volume caps.
package position

import (
	"strings"
	"time"

	"optioncore/internal/events"
)

// Position is one strategy-managed option holding.
type Position struct {
	VtSymbol           string
	UnderlyingVtSymbol string
	Signal             string
	TargetVolume       int
	Volume             int
	AvgPrice           float64
	OpenedAt           time.Time
	Closed             bool
	ManuallyClosedQty  int
}

// IsActive reports whether the position still carries open volume.
func (p *Position) IsActive() bool { return !p.Closed && p.Volume > 0 }

// AddFill accounts for an opening trade.
func (p *Position) AddFill(volume int, price float64, at time.Time) {
	prevVolume := p.Volume
	totalCost := p.AvgPrice*float64(p.Volume) + price*float64(volume)
	p.Volume += volume
	if prevVolume <= 0 && volume > 0 {
		p.AvgPrice = price
	} else if p.Volume > 0 {
		p.AvgPrice = totalCost / float64(p.Volume)
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = at
	}
}

// ReduceVolume accounts for a closing trade, marking the position closed
// once volume reaches zero.
func (p *Position) ReduceVolume(volume int, _ time.Time) {
	p.Volume -= volume
	if p.Volume <= 0 {
		p.Volume = 0
		p.Closed = true
	}
}

// MarkManuallyClosed records a broker-side reduction the strategy did not
// itself order.
func (p *Position) MarkManuallyClosed(volume int) {
	p.ManuallyClosedQty += volume
	p.Volume -= volume
	if p.Volume <= 0 {
		p.Volume = 0
		p.Closed = true
	}
}

// OrderStatus mirrors the tracked-order lifecycle states.
type OrderStatus string

const (
	StatusSubmitting OrderStatus = "submitting"
	StatusNotTraded  OrderStatus = "nottraded"
	StatusPartTraded OrderStatus = "parttraded"
	StatusAllTraded  OrderStatus = "alltraded"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRejected   OrderStatus = "rejected"
)

// TrackedOrder is a pending order the aggregate watches through to a
// terminal state.
type TrackedOrder struct {
	VtOrderID string
	VtSymbol  string
	IsOpen    bool // true for an opening order, false for a closing order
	Volume    int
	Traded    int
	Status    OrderStatus
}

// IsActive reports whether the order can still receive fills.
func (o *TrackedOrder) IsActive() bool {
	switch o.Status {
	case StatusCancelled, StatusRejected, StatusAllTraded:
		return false
	default:
		return true
	}
}

// IsFinished reports whether the order has reached a terminal state.
func (o *TrackedOrder) IsFinished() bool { return !o.IsActive() }

// RemainingVolume is the still-unfilled portion of the order.
func (o *TrackedOrder) RemainingVolume() int {
	if r := o.Volume - o.Traded; r > 0 {
		return r
	}
	return 0
}

func (o *TrackedOrder) updateStatus(status OrderStatus, traded int) {
	o.Status = status
	o.Traded = traded
}

// OrderUpdate is the subset of a broker order-status callback the
// aggregate consumes.
type OrderUpdate struct {
	VtOrderID string
	VtSymbol  string
	Status    OrderStatus
	Traded    int
}

// TradeUpdate is the subset of a fill report the aggregate consumes.
type TradeUpdate struct {
	VtSymbol string
	Volume   int
	Offset   string // "open" or "close"
	Price    float64
	At       time.Time
}

// ExternalPosition is a broker-reported position snapshot, used to detect
// manual intervention via reconciliation.
type ExternalPosition struct {
	VtSymbol string
	Volume   int
}

// Aggregate is the per-strategy root owning all positions, pending
// orders, the managed-symbol set, and daily open-volume counters. It is
// not safe for concurrent use: the worker event loop (C21) is the single
// writer.
type Aggregate struct {
	positions      map[string]*Position
	pendingOrders  map[string]*TrackedOrder
	managedSymbols map[string]bool

	dailyOpenByContract map[string]int
	globalDailyOpen     int
	lastTradingDate     string

	// countManualOpensTowardDailyCap: see SetCountManualOpensTowardDailyCap.
	countManualOpensTowardDailyCap bool

	bus *events.DomainBus
}

// NewAggregate returns an empty aggregate, publishing manual-intervention
// and risk-limit events on bus (bus may be nil in tests).
func NewAggregate(bus *events.DomainBus) *Aggregate {
	return &Aggregate{
		positions:           make(map[string]*Position),
		pendingOrders:       make(map[string]*TrackedOrder),
		managedSymbols:      make(map[string]bool),
		dailyOpenByContract: make(map[string]int),
		bus:                 bus,
	}
}

// SetCountManualOpensTowardDailyCap configures whether a manually-detected
// broker-side open (ReconcileExternalPosition) also counts against the
// daily open-volume cap. Default false: the strategy does not take
// ownership of externally-opened volume, so it does not charge that volume
// against the caps it enforces for its own opens.
func (a *Aggregate) SetCountManualOpensTowardDailyCap(v bool) { a.countManualOpensTowardDailyCap = v }

// CreatePosition registers a new strategy-managed position.
func (a *Aggregate) CreatePosition(optionVtSymbol, underlyingVtSymbol, signal string, targetVolume int) *Position {
	p := &Position{
		VtSymbol:           optionVtSymbol,
		UnderlyingVtSymbol: underlyingVtSymbol,
		Signal:             signal,
		TargetVolume:       targetVolume,
	}
	a.positions[optionVtSymbol] = p
	a.managedSymbols[optionVtSymbol] = true
	return p
}

// GetPosition looks up a position by contract symbol.
func (a *Aggregate) GetPosition(vtSymbol string) (*Position, bool) {
	p, ok := a.positions[vtSymbol]
	return p, ok
}

// GetPositionsByUnderlying returns every active position on underlying.
func (a *Aggregate) GetPositionsByUnderlying(underlyingVtSymbol string) []*Position {
	var out []*Position
	for _, p := range a.positions {
		if p.UnderlyingVtSymbol == underlyingVtSymbol && !p.Closed && p.Volume > 0 {
			out = append(out, p)
		}
	}
	return out
}

// GetActivePositions returns every position still carrying open volume.
func (a *Aggregate) GetActivePositions() []*Position {
	var out []*Position
	for _, p := range a.positions {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// GetAllPositions returns every position, including closed ones.
func (a *Aggregate) GetAllPositions() []*Position {
	out := make([]*Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out
}

// AddPendingOrder registers a newly-submitted order for tracking.
func (a *Aggregate) AddPendingOrder(o *TrackedOrder) { a.pendingOrders[o.VtOrderID] = o }

// GetPendingOrder looks up a tracked order by ID.
func (a *Aggregate) GetPendingOrder(vtOrderID string) (*TrackedOrder, bool) {
	o, ok := a.pendingOrders[vtOrderID]
	return o, ok
}

// GetAllPendingOrders returns every order still being tracked.
func (a *Aggregate) GetAllPendingOrders() []*TrackedOrder {
	out := make([]*TrackedOrder, 0, len(a.pendingOrders))
	for _, o := range a.pendingOrders {
		out = append(out, o)
	}
	return out
}

// HasPendingClose reports whether an active closing order exists for
// position's symbol.
func (a *Aggregate) HasPendingClose(p *Position) bool {
	for _, o := range a.pendingOrders {
		if o.VtSymbol == p.VtSymbol && !o.IsOpen && o.IsActive() {
			return true
		}
	}
	return false
}

// OnNewTradingDay resets the daily open-volume counters the first time
// it's called with a new calendar date.
func (a *Aggregate) OnNewTradingDay(currentDate string) {
	if a.lastTradingDate != currentDate {
		a.dailyOpenByContract = make(map[string]int)
		a.globalDailyOpen = 0
		a.lastTradingDate = currentDate
	}
}

const (
	defaultGlobalDailyLimit   = 50
	defaultContractDailyLimit = 2
)

// RecordOpenUsage accounts for a filled opening trade against the daily
// caps, publishing a risk-limit-exceeded style breach via the domain bus
// when either cap is reached or exceeded.
func (a *Aggregate) RecordOpenUsage(vtSymbol string, volume, globalLimit, contractLimit int) {
	if globalLimit <= 0 {
		globalLimit = defaultGlobalDailyLimit
	}
	if contractLimit <= 0 {
		contractLimit = defaultContractDailyLimit
	}

	a.globalDailyOpen += volume
	a.dailyOpenByContract[vtSymbol] += volume

	if a.globalDailyOpen >= globalLimit && a.bus != nil {
		a.bus.Publish(events.GreeksRiskBreachEvent{
			Scope:     "portfolio",
			Field:     "daily_open_volume",
			Value:     float64(a.globalDailyOpen),
			Threshold: float64(globalLimit),
		})
	}
	if a.dailyOpenByContract[vtSymbol] >= contractLimit && a.bus != nil {
		a.bus.Publish(events.GreeksRiskBreachEvent{
			Scope:     "position",
			VtSymbol:  vtSymbol,
			Field:     "daily_open_volume",
			Value:     float64(a.dailyOpenByContract[vtSymbol]),
			Threshold: float64(contractLimit),
		})
	}
}

// GetDailyOpenVolume returns today's filled open volume for vtSymbol.
func (a *Aggregate) GetDailyOpenVolume(vtSymbol string) int { return a.dailyOpenByContract[vtSymbol] }

// GetGlobalDailyOpenVolume returns today's total filled open volume.
func (a *Aggregate) GetGlobalDailyOpenVolume() int { return a.globalDailyOpen }

// GetReservedOpenVolume sums the unfilled remainder of active opening
// orders, optionally restricted to one contract, so a caller can account
// for in-flight opens before they fill when checking the daily cap.
func (a *Aggregate) GetReservedOpenVolume(vtSymbol string) int {
	total := 0
	for _, o := range a.pendingOrders {
		if !o.IsOpen || !o.IsActive() {
			continue
		}
		if vtSymbol != "" && o.VtSymbol != vtSymbol {
			continue
		}
		total += o.RemainingVolume()
	}
	return total
}

// UpdateFromOrder applies a broker order-status callback to the matching
// tracked order, removing it from tracking once finished.
func (a *Aggregate) UpdateFromOrder(u OrderUpdate) {
	order, ok := a.pendingOrders[u.VtOrderID]
	if !ok {
		return
	}
	order.updateStatus(u.Status, u.Traded)
	if order.IsFinished() {
		delete(a.pendingOrders, u.VtOrderID)
	}
}

// UpdateFromTrade applies a fill to the matching position's volume and, on
// an opening fill, records daily-cap usage.
func (a *Aggregate) UpdateFromTrade(t TradeUpdate) {
	if !a.managedSymbols[t.VtSymbol] {
		return
	}
	p, ok := a.positions[t.VtSymbol]
	if !ok {
		return
	}

	if strings.EqualFold(t.Offset, "open") {
		p.AddFill(t.Volume, t.Price, t.At)
		a.RecordOpenUsage(t.VtSymbol, t.Volume, 0, 0)
	} else {
		p.ReduceVolume(t.Volume, t.At)
	}
}

// ReconcileExternalPosition compares a broker-reported position against
// the strategy's own record and raises ManualCloseDetectedEvent /
// ManualOpenDetectedEvent on any discrepancy. A manual close also reduces
// the tracked position's volume; a manual open does not, since the
// strategy does not take ownership of externally-opened volume.
func (a *Aggregate) ReconcileExternalPosition(ext ExternalPosition) {
	if !a.managedSymbols[ext.VtSymbol] {
		return
	}
	p, ok := a.positions[ext.VtSymbol]
	if !ok {
		return
	}

	switch {
	case ext.Volume < p.Volume:
		manual := p.Volume - ext.Volume
		p.MarkManuallyClosed(manual)
		if a.bus != nil {
			a.bus.Publish(events.ManualCloseDetectedEvent{
				VtSymbol:      ext.VtSymbol,
				ExpectedDelta: float64(p.Volume),
				ActualDelta:   float64(ext.Volume),
			})
		}
	case ext.Volume > p.Volume:
		manual := ext.Volume - p.Volume
		if a.countManualOpensTowardDailyCap {
			a.RecordOpenUsage(ext.VtSymbol, manual, 0, 0)
		}
		if a.bus != nil {
			a.bus.Publish(events.ManualOpenDetectedEvent{
				VtSymbol:      ext.VtSymbol,
				ExpectedDelta: float64(p.Volume),
				ActualDelta:   float64(manual + p.Volume),
			})
		}
	}
}

// IsManaged reports whether vtSymbol is owned by this strategy.
func (a *Aggregate) IsManaged(vtSymbol string) bool { return a.managedSymbols[vtSymbol] }

// Clear wipes positions, pending orders and the managed-symbol set (used
// before loading a snapshot). The daily open-volume counters are kept;
// RestoreDailyCounters replaces them.
func (a *Aggregate) Clear() {
	a.positions = make(map[string]*Position)
	a.pendingOrders = make(map[string]*TrackedOrder)
	a.managedSymbols = make(map[string]bool)
}

// RestorePosition installs p verbatim, re-marking its symbol as managed.
// Used when loading a persisted snapshot (C18).
func (a *Aggregate) RestorePosition(p *Position) {
	a.positions[p.VtSymbol] = p
	a.managedSymbols[p.VtSymbol] = true
}

// RestorePendingOrder installs o verbatim. Used when loading a persisted
// snapshot (C18).
func (a *Aggregate) RestorePendingOrder(o *TrackedOrder) { a.pendingOrders[o.VtOrderID] = o }

// RestoreDailyCounters installs the daily open-volume bookkeeping verbatim.
// Used when loading a persisted snapshot (C18).
func (a *Aggregate) RestoreDailyCounters(byContract map[string]int, global int, tradingDate string) {
	if byContract == nil {
		byContract = make(map[string]int)
	}
	a.dailyOpenByContract = byContract
	a.globalDailyOpen = global
	a.lastTradingDate = tradingDate
}

// DailyCounters returns copies of the daily open-volume bookkeeping, for
// snapshot serialization.
func (a *Aggregate) DailyCounters() (byContract map[string]int, global int, tradingDate string) {
	out := make(map[string]int, len(a.dailyOpenByContract))
	for k, v := range a.dailyOpenByContract {
		out[k] = v
	}
	return out, a.globalDailyOpen, a.lastTradingDate
}
