// Package order implements the smart order executor: adaptive pricing,
// tick rounding, and the submit/timeout/retry state machine that keeps a
// passive order from sitting unfilled indefinitely.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"optioncore/internal/events"
	"optioncore/internal/sizing"
)

// ExecutionConfig tunes adaptive pricing and the timeout/retry loop.
type ExecutionConfig struct {
	SlippageTicks float64
	TimeoutSecs   float64
	MaxRetries    int
}

// DefaultExecutionConfig mirrors the reference implementation's defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{SlippageTicks: 1, TimeoutSecs: 15, MaxRetries: 3}
}

// ManagedOrder is an order under the executor's timeout/retry watch.
type ManagedOrder struct {
	VtOrderID   string
	Instruction sizing.Instruction
	SubmitTime  time.Time
	IsActive    bool
	RetryCount  int
}

// Executor computes adaptive prices and runs the timeout/retry state
// machine. It never talks to a gateway directly: it returns prices,
// cancel IDs, and domain events for the caller (the worker event loop,
// C21) to act on.
type Executor struct {
	config ExecutionConfig
	orders map[string]*ManagedOrder
}

// NewExecutor returns an executor using cfg.
func NewExecutor(cfg ExecutionConfig) *Executor {
	return &Executor{config: cfg, orders: make(map[string]*ManagedOrder)}
}

// CalculateAdaptivePrice prices an order off the current best bid/ask: a
// short (sell) order prices behind the bid by SlippageTicks*priceTick to
// improve the odds of a fast fill; a long (buy) order prices ahead of the
// ask symmetrically. Falls back to the instruction's own price when the
// relevant side of the book is unavailable (<=0).
func (e *Executor) CalculateAdaptivePrice(instr sizing.Instruction, bidPrice, askPrice, priceTick float64) float64 {
	if instr.Direction == sizing.Short {
		if bidPrice <= 0 {
			return instr.Price
		}
		return bidPrice - e.config.SlippageTicks*priceTick
	}
	if askPrice <= 0 {
		return instr.Price
	}
	return askPrice + e.config.SlippageTicks*priceTick
}

// RoundPriceToTick aligns price to the nearest multiple of priceTick.
func RoundPriceToTick(price, priceTick float64) float64 {
	if priceTick <= 0 {
		return price
	}
	tick := decimal.NewFromFloat(priceTick)
	rounded, _ := decimal.NewFromFloat(price).Div(tick).Round(0).Mul(tick).Float64()
	return rounded
}

// RegisterOrder starts tracking a newly-submitted order for timeout
// purposes.
func (e *Executor) RegisterOrder(vtOrderID string, instr sizing.Instruction) *ManagedOrder {
	o := &ManagedOrder{VtOrderID: vtOrderID, Instruction: instr, SubmitTime: time.Now(), IsActive: true}
	e.orders[vtOrderID] = o
	return o
}

// GetOrder looks up a tracked order by ID.
func (e *Executor) GetOrder(vtOrderID string) (*ManagedOrder, bool) {
	o, ok := e.orders[vtOrderID]
	return o, ok
}

// CheckTimeouts scans tracked orders for those whose deadline has
// elapsed, returning their IDs (for the caller to cancel) and one
// OrderTimeoutEvent per timed-out order. A timed-out order stays active
// until the caller confirms the cancel via MarkOrderCancelled, so it will
// keep being reported on every subsequent tick until then; callers are
// expected to de-duplicate by vt_order_id.
func (e *Executor) CheckTimeouts(now time.Time) ([]string, []events.DomainEvent) {
	var cancelIDs []string
	var evs []events.DomainEvent

	for id, o := range e.orders {
		if !o.IsActive {
			continue
		}
		elapsed := now.Sub(o.SubmitTime).Seconds()
		if elapsed >= e.config.TimeoutSecs {
			cancelIDs = append(cancelIDs, id)
			evs = append(evs, events.OrderTimeoutEvent{
				VtOrderID: id,
				VtSymbol:  o.Instruction.VtSymbol,
				RetryLeft: e.config.MaxRetries - o.RetryCount,
			})
		}
	}
	return cancelIDs, evs
}

// MarkOrderFilled stops timeout tracking for a filled order.
func (e *Executor) MarkOrderFilled(vtOrderID string) {
	if o, ok := e.orders[vtOrderID]; ok {
		o.IsActive = false
	}
}

// MarkOrderCancelled stops timeout tracking for a cancelled order.
func (e *Executor) MarkOrderCancelled(vtOrderID string) {
	if o, ok := e.orders[vtOrderID]; ok {
		o.IsActive = false
	}
}

// PrepareRetry returns a re-priced instruction one tick more aggressive
// than the last attempt (lower for a short, higher for a long) along with
// an OrderRetryExhaustedEvent in place of a fresh instruction once
// MaxRetries is reached.
func (e *Executor) PrepareRetry(mo *ManagedOrder, priceTick float64) (sizing.Instruction, bool, *events.OrderRetryExhaustedEvent) {
	if mo.RetryCount >= e.config.MaxRetries {
		return sizing.Instruction{}, false, &events.OrderRetryExhaustedEvent{
			VtOrderID: mo.VtOrderID,
			VtSymbol:  mo.Instruction.VtSymbol,
		}
	}

	old := mo.Instruction
	var newPrice float64
	if old.Direction == sizing.Short {
		newPrice = old.Price - priceTick
	} else {
		newPrice = old.Price + priceTick
	}
	newPrice = RoundPriceToTick(newPrice, priceTick)
	mo.RetryCount++

	return sizing.Instruction{
		VtSymbol:  old.VtSymbol,
		Direction: old.Direction,
		Offset:    old.Offset,
		Volume:    old.Volume,
		Price:     newPrice,
		Signal:    old.Signal,
	}, true, nil
}
