package events

import "time"

// Topic enumerates low-stakes, buffered fan-out channels (monitor pushes,
// websocket notifications). Delivery on these topics may drop a slow
// subscriber; see Bus.
type Topic string

const (
	TopicPriceTick      Topic = "price_tick"
	TopicBarUpdate      Topic = "bar_update"
	TopicOrderUpdate    Topic = "order_update"
	TopicPositionChange Topic = "position_change"
	TopicMonitorPush    Topic = "monitor_push"
)

// DomainEvent is the typed-union of facts published on the synchronous
// domain bus (DomainBus). Handlers register by concrete Go type via reflection
// in DomainBus.Subscribe.
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// Base is embedded by every DomainEvent to supply OccurredAt. Constructing
// an event without setting Base.At is fine: OccurredAt falls back to the
// time of the call, so callers outside this package never need to touch
// it directly.
type Base struct {
	At time.Time
}

func (b Base) OccurredAt() time.Time {
	if b.At.IsZero() {
		return time.Now()
	}
	return b.At
}

// ManualCloseDetectedEvent fires when a broker-reported position decrease
// cannot be explained by tracked fills.
type ManualCloseDetectedEvent struct {
	Base
	VtSymbol      string
	ExpectedDelta float64
	ActualDelta   float64
}

func (ManualCloseDetectedEvent) EventName() string { return "ManualCloseDetectedEvent" }

// ManualOpenDetectedEvent fires when a broker-reported position increase
// cannot be explained by tracked fills.
type ManualOpenDetectedEvent struct {
	Base
	VtSymbol      string
	ExpectedDelta float64
	ActualDelta   float64
}

func (ManualOpenDetectedEvent) EventName() string { return "ManualOpenDetectedEvent" }

// ActiveContractChangedEvent fires when the dominant contract for a product
// rolls over.
type ActiveContractChangedEvent struct {
	Base
	Product   string
	OldSymbol string
	NewSymbol string
}

func (ActiveContractChangedEvent) EventName() string { return "ActiveContractChangedEvent" }

// OrderTimeoutEvent fires when a managed order's deadline elapses without a
// terminal fill.
type OrderTimeoutEvent struct {
	Base
	VtOrderID string
	VtSymbol  string
	RetryLeft int
}

func (OrderTimeoutEvent) EventName() string { return "OrderTimeoutEvent" }

// OrderRetryExhaustedEvent fires when a managed order has used all retries
// and gives up.
type OrderRetryExhaustedEvent struct {
	Base
	VtOrderID string
	VtSymbol  string
}

func (OrderRetryExhaustedEvent) EventName() string { return "OrderRetryExhaustedEvent" }

// GreeksRiskBreachEvent fires on the edge transition from ok to breached for
// a given threshold field, at position or portfolio scope.
type GreeksRiskBreachEvent struct {
	Base
	Scope     string // "position" or "portfolio"
	VtSymbol  string // empty at portfolio scope
	Field     string // "delta", "gamma", "vega", "theta"
	Value     float64
	Threshold float64
}

func (GreeksRiskBreachEvent) EventName() string { return "GreeksRiskBreachEvent" }

// AdvancedOrderCompleteEvent fires once, when an advanced order's filled
// volume reaches its total.
type AdvancedOrderCompleteEvent struct {
	Base
	AdvancedID string
	Kind       string
}

func (AdvancedOrderCompleteEvent) EventName() string { return "AdvancedOrderCompleteEvent" }

// AdvancedOrderCancelledEvent fires when a parent order is cancelled with
// children still unscheduled/unfilled.
type AdvancedOrderCancelledEvent struct {
	Base
	AdvancedID      string
	Kind            string
	CancelledChilds []string
}

func (AdvancedOrderCancelledEvent) EventName() string { return "AdvancedOrderCancelledEvent" }

// RolloverEvent fires when the active-contract map is updated by the
// strategy engine's daily rollover check.
type RolloverEvent struct {
	Base
	Product   string
	OldSymbol string
	NewSymbol string
}

func (RolloverEvent) EventName() string { return "RolloverEvent" }

// HedgeExecutedEvent fires when the delta hedging engine decides to trade.
type HedgeExecutedEvent struct {
	Base
	HedgeVolume         int
	HedgeDirection      string
	PortfolioDeltaBefore float64
	PortfolioDeltaAfter  float64
	HedgeInstrument      string
}

func (HedgeExecutedEvent) EventName() string { return "HedgeExecutedEvent" }

// GammaScalpEvent fires when the gamma scalping engine decides to rebalance.
type GammaScalpEvent struct {
	Base
	RebalanceVolume     int
	RebalanceDirection  string
	PortfolioDeltaBefore float64
	PortfolioGamma       float64
	HedgeInstrument      string
}

func (GammaScalpEvent) EventName() string { return "GammaScalpEvent" }
