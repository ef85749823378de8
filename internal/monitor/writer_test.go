package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"optioncore/internal/events"
	"optioncore/internal/instrument"
	"optioncore/internal/position"
	"optioncore/internal/risk"
)

func TestCaptureSnapshotIncludesActivePositionsAndContracts(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	metrics := NewMetrics(DefaultConfig())

	instruments := instrument.NewAggregate()
	instruments.SetActiveContract("rb", "rb2410.SHFE")

	positions := position.NewAggregate(events.NewDomainBus())
	p := positions.CreatePosition("rb2410C4000.SHFE", "rb2410.SHFE", "macd_cross", 2)
	p.AddFill(2, 4010.0, time.Now())

	w := NewSnapshotWriter(repo, metrics, "vol-15m", "inst-1", StateSource{
		Instruments: instruments,
		Positions:   positions,
		PortfolioGreeksFn: func() risk.PortfolioGreeks {
			return risk.PortfolioGreeks{TotalDelta: 12.5, PositionCount: 1}
		},
	})

	if err := w.captureSnapshot(); err != nil {
		t.Fatalf("captureSnapshot: %v", err)
	}

	payload, _, err := repo.LatestSnapshot("vol-15m", "inst-1")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if !strings.Contains(payload, "rb2410C4000.SHFE") {
		t.Fatalf("expected snapshot to include the active position, got %s", payload)
	}
	if !strings.Contains(payload, "rb2410.SHFE") {
		t.Fatalf("expected snapshot to include the active contract, got %s", payload)
	}
}

func TestSubscribeEventsRecordsRiskBreach(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	metrics := NewMetrics(DefaultConfig())
	bus := events.NewDomainBus()

	w := NewSnapshotWriter(repo, metrics, "vol-15m", "inst-1", StateSource{
		Instruments: instrument.NewAggregate(),
		Positions:   position.NewAggregate(bus),
	})
	w.Start(context.Background(), bus, time.Hour)

	bus.Publish(events.GreeksRiskBreachEvent{
		Scope: "portfolio", Field: "delta", Value: 120, Threshold: 100,
	})

	rows, err := repo.Events("vol-15m", "inst-1", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(rows) != 1 || rows[0].EventType != "GreeksRiskBreachEvent" {
		t.Fatalf("expected one recorded GreeksRiskBreachEvent, got %+v", rows)
	}
}
