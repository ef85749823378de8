package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"optioncore/internal/events"
	"optioncore/internal/instrument"
	"optioncore/internal/order"
	"optioncore/internal/position"
	"optioncore/internal/risk"
)

// PositionSummary is one active position as reported in a snapshot.
type PositionSummary struct {
	VtSymbol           string  `json:"vt_symbol"`
	UnderlyingVtSymbol string  `json:"underlying_vt_symbol"`
	Signal             string  `json:"signal"`
	Volume             int     `json:"volume"`
	TargetVolume       int     `json:"target_volume"`
	AvgPrice           float64 `json:"avg_price"`
}

// SnapshotPayload is the JSON body stored in monitor_signal_snapshot and
// served back by C25's GET /monitor/snapshot/:variant.
type SnapshotPayload struct {
	Variant          string               `json:"variant"`
	InstanceID       string               `json:"instance_id"`
	CapturedAt       time.Time            `json:"captured_at"`
	ActiveContracts  map[string]string    `json:"active_contracts"`
	Positions        []PositionSummary    `json:"positions"`
	PortfolioGreeks  risk.PortfolioGreeks `json:"portfolio_greeks"`
	GlobalDailyOpen  int                  `json:"global_daily_open_volume"`
	SchedulerBacklog int                  `json:"scheduler_backlog"`
}

// StateSource is the live engine state the writer polls on each tick.
// PortfolioGreeksFn is a closure rather than a direct *strategy.Engine
// dependency so this package never needs to import strategy (which would
// otherwise risk a future import cycle if the engine ever wants to push
// metrics itself).
type StateSource struct {
	Instruments       *instrument.Aggregate
	Positions         *position.Aggregate
	Scheduler         *order.Scheduler // nil if STRATEGY_USE_SCHEDULER is off
	PortfolioGreeksFn func() risk.PortfolioGreeks
}

// SnapshotWriter drains DomainBus events into monitor_signal_event and
// periodically upserts a monitor_signal_snapshot row. Grounded on the
// teacher's monitor.Monitor (one Bus subscription, a goroutine forwarding
// into an AlertFn) generalized to DomainBus's multi-type Subscribe and to
// a second, independent periodic-poll goroutine for the snapshot half.
type SnapshotWriter struct {
	repo       *Repository
	metrics    *Metrics
	variant    string
	instanceID string
	state      StateSource
}

// NewSnapshotWriter returns a writer for one (variant, instanceID) pair.
// instanceID scopes rows when more than one strategy instance shares a
// database (SPEC_FULL's "Variant" glossary entry).
func NewSnapshotWriter(repo *Repository, metrics *Metrics, variant, instanceID string, state StateSource) *SnapshotWriter {
	return &SnapshotWriter{repo: repo, metrics: metrics, variant: variant, instanceID: instanceID, state: state}
}

// Start subscribes to every DomainEvent type worth recording and launches
// a goroutine that upserts a snapshot every interval, until ctx is done.
func (w *SnapshotWriter) Start(ctx context.Context, bus *events.DomainBus, interval time.Duration) {
	w.subscribeEvents(bus)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.captureSnapshot(); err != nil {
					log.Printf("monitor: snapshot capture failed: %v", err)
				}
			}
		}
	}()
}

func (w *SnapshotWriter) captureSnapshot() error {
	now := time.Now()

	var summaries []PositionSummary
	for _, p := range w.state.Positions.GetActivePositions() {
		summaries = append(summaries, PositionSummary{
			VtSymbol: p.VtSymbol, UnderlyingVtSymbol: p.UnderlyingVtSymbol,
			Signal: p.Signal, Volume: p.Volume, TargetVolume: p.TargetVolume, AvgPrice: p.AvgPrice,
		})
	}

	var pg risk.PortfolioGreeks
	if w.state.PortfolioGreeksFn != nil {
		pg = w.state.PortfolioGreeksFn()
	}
	w.metrics.SetPortfolioGreeks(pg)

	_, globalDailyOpen, _ := w.state.Positions.DailyCounters()
	w.metrics.SetDailyOpenVolume(globalDailyOpen)

	backlog := 0
	if w.state.Scheduler != nil {
		backlog = w.state.Scheduler.PendingOrderCount()
	}
	w.metrics.SetSchedulerBacklog(backlog)

	activeContracts := w.state.Instruments.ActiveContractsMap()

	payload := SnapshotPayload{
		Variant: w.variant, InstanceID: w.instanceID, CapturedAt: now,
		ActiveContracts: activeContracts, Positions: summaries,
		PortfolioGreeks: pg, GlobalDailyOpen: globalDailyOpen, SchedulerBacklog: backlog,
	}
	return w.repo.UpsertSnapshot(w.variant, w.instanceID, payload, now)
}

func (w *SnapshotWriter) subscribeEvents(bus *events.DomainBus) {
	record := func(e events.DomainEvent, vtSymbol string) {
		key := fmt.Sprintf("%s|%s|%s|%d|%s", w.variant, w.instanceID, vtSymbol, e.OccurredAt().UnixNano(), e.EventName())
		if err := w.repo.RecordEvent(key, w.variant, w.instanceID, vtSymbol, e.EventName(), e, e.OccurredAt()); err != nil {
			log.Printf("monitor: record event %s failed: %v", e.EventName(), err)
		}
	}

	bus.Subscribe(events.ManualCloseDetectedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.ManualCloseDetectedEvent)
		w.metrics.RecordManualIntervention("close")
		record(e, ev.VtSymbol)
	})
	bus.Subscribe(events.ManualOpenDetectedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.ManualOpenDetectedEvent)
		w.metrics.RecordManualIntervention("open")
		record(e, ev.VtSymbol)
	})
	bus.Subscribe(events.ActiveContractChangedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.ActiveContractChangedEvent)
		record(e, ev.NewSymbol)
	})
	bus.Subscribe(events.RolloverEvent{}, func(e events.DomainEvent) {
		ev := e.(events.RolloverEvent)
		w.metrics.RecordRollover()
		record(e, ev.NewSymbol)
	})
	bus.Subscribe(events.OrderTimeoutEvent{}, func(e events.DomainEvent) {
		ev := e.(events.OrderTimeoutEvent)
		w.metrics.RecordOrderTimeout()
		record(e, ev.VtSymbol)
	})
	bus.Subscribe(events.OrderRetryExhaustedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.OrderRetryExhaustedEvent)
		w.metrics.RecordOrderRetryExhausted()
		record(e, ev.VtSymbol)
	})
	bus.Subscribe(events.GreeksRiskBreachEvent{}, func(e events.DomainEvent) {
		ev := e.(events.GreeksRiskBreachEvent)
		w.metrics.RecordRiskBreach(ev.Scope, ev.Field)
		record(e, ev.VtSymbol)
	})
	bus.Subscribe(events.AdvancedOrderCompleteEvent{}, func(e events.DomainEvent) {
		ev := e.(events.AdvancedOrderCompleteEvent)
		record(e, ev.AdvancedID)
	})
	bus.Subscribe(events.AdvancedOrderCancelledEvent{}, func(e events.DomainEvent) {
		ev := e.(events.AdvancedOrderCancelledEvent)
		record(e, ev.AdvancedID)
	})
	bus.Subscribe(events.HedgeExecutedEvent{}, func(e events.DomainEvent) {
		ev := e.(events.HedgeExecutedEvent)
		w.metrics.RecordHedgeExecuted()
		record(e, ev.HedgeInstrument)
	})
	bus.Subscribe(events.GammaScalpEvent{}, func(e events.DomainEvent) {
		ev := e.(events.GammaScalpEvent)
		w.metrics.RecordGammaScalp()
		record(e, ev.HedgeInstrument)
	})
}
