package monitor

import (
	"context"
	"fmt"

	"optioncore/internal/events"
)

// AlertSink is a pluggable alert delivery destination (e.g. a webhook or
// an operator chat bot) independent of the websocket push path.
type AlertSink interface {
	Send(message string) error
}

// AlertRouter relays a subset of DomainBus events — the ones an operator
// should be paged for, not every recorded event — onto the low-stakes
// async Bus's TopicMonitorPush (for C25's websocket handler to forward to
// connected dashboards) and, if configured, an AlertSink.
//
// Grounded on the teacher's monitor.Monitor, generalized from a single
// Bus.Subscribe(EventRiskAlert) to DomainBus's typed Subscribe across the
// handful of event types that actually warrant paging.
type AlertRouter struct {
	PushBus *events.Bus
	Sink    AlertSink
}

// Start registers handlers for GreeksRiskBreachEvent, OrderRetryExhaustedEvent,
// ManualCloseDetectedEvent and ManualOpenDetectedEvent — the events that
// indicate something needs a human's attention, as opposed to routine
// fills and rollovers which are recorded but not pushed. ctx is accepted
// for symmetry with SnapshotWriter.Start and future cancellable delivery,
// but DomainBus dispatch itself is synchronous and needs no goroutine.
func (r *AlertRouter) Start(ctx context.Context, bus *events.DomainBus) {
	bus.Subscribe(events.GreeksRiskBreachEvent{}, func(e events.DomainEvent) {
		ev := e.(events.GreeksRiskBreachEvent)
		r.push(fmt.Sprintf("risk breach: %s %s=%.4f (limit %.4f) on %s", ev.Scope, ev.Field, ev.Value, ev.Threshold, ev.VtSymbol))
	})
	bus.Subscribe(events.OrderRetryExhaustedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.OrderRetryExhaustedEvent)
		r.push(fmt.Sprintf("order %s on %s exhausted its retries", ev.VtOrderID, ev.VtSymbol))
	})
	bus.Subscribe(events.ManualCloseDetectedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.ManualCloseDetectedEvent)
		r.push(fmt.Sprintf("manual close detected on %s (expected %.0f, actual %.0f)", ev.VtSymbol, ev.ExpectedDelta, ev.ActualDelta))
	})
	bus.Subscribe(events.ManualOpenDetectedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.ManualOpenDetectedEvent)
		r.push(fmt.Sprintf("manual open detected on %s (expected %.0f, actual %.0f)", ev.VtSymbol, ev.ExpectedDelta, ev.ActualDelta))
	})
}

func (r *AlertRouter) push(message string) {
	if r.PushBus != nil {
		r.PushBus.Publish(events.TopicMonitorPush, message)
	}
	if r.Sink != nil {
		_ = r.Sink.Send(message)
	}
}
