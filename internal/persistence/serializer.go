// Package persistence serializes the strategy's in-memory state (instrument
// and position aggregates) to the typed-marker JSON snapshot format and
// restores it on startup, plus the append-only repository and auto-save
// timer that drive when a snapshot gets written.
package persistence

import (
	"encoding/json"
	"time"

	"optioncore/internal/barpipeline"
	"optioncore/internal/instrument"
	"optioncore/internal/position"
)

// CurrentSchemaVersion is written into every new snapshot. Loaders that see
// a different value may need migration logic before trusting the payload;
// none exists yet since this is schema version 1.
const CurrentSchemaVersion = 1

// markedTime wraps time.Time so it marshals as the snapshot format's
// {"__datetime__": iso8601} typed marker instead of a bare JSON string,
// distinguishing timestamps from ordinary strings on reload.
type markedTime time.Time

func (m markedTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Datetime string `json:"__datetime__"`
	}{Datetime: time.Time(m).UTC().Format(time.RFC3339Nano)})
}

func (m *markedTime) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Datetime string `json:"__datetime__"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, wrapper.Datetime)
	if err != nil {
		return err
	}
	*m = markedTime(t)
	return nil
}

type barDTO struct {
	Open, High, Low, Close, Volume float64
	Datetime                       markedTime
}

type targetDTO struct {
	VtSymbol       string
	Bars           []barDTO
	Indicators     map[string]float64
	LastUpdateTime markedTime
}

type instrumentAggregateDTO struct {
	Targets         []targetDTO       `json:"targets"`
	ActiveContracts map[string]string `json:"active_contracts"`
}

type positionDTO struct {
	VtSymbol           string
	UnderlyingVtSymbol string
	Signal             string
	TargetVolume       int
	Volume             int
	AvgPrice           float64
	OpenedAt           markedTime
	Closed             bool
	ManuallyClosedQty  int
}

type trackedOrderDTO struct {
	VtOrderID string
	VtSymbol  string
	IsOpen    bool
	Volume    int
	Traded    int
	Status    string
}

type positionAggregateDTO struct {
	Positions           []positionDTO     `json:"positions"`
	PendingOrders       []trackedOrderDTO `json:"pending_orders"`
	DailyOpenByContract map[string]int    `json:"daily_open_by_contract"`
	GlobalDailyOpen     int               `json:"global_daily_open"`
	LastTradingDate     string            `json:"last_trading_date"`
}

// Snapshot is the top-level strategy state snapshot: schema_version,
// saved_at, target_aggregate, position_aggregate, current_dt.
type Snapshot struct {
	SchemaVersion     int                    `json:"schema_version"`
	SavedAt           markedTime             `json:"saved_at"`
	CurrentDT         markedTime             `json:"current_dt"`
	TargetAggregate   instrumentAggregateDTO `json:"target_aggregate"`
	PositionAggregate positionAggregateDTO   `json:"position_aggregate"`
}

// BuildSnapshot captures instruments and positions as of now into a
// Snapshot ready for serialization.
func BuildSnapshot(instruments *instrument.Aggregate, positions *position.Aggregate, now time.Time) Snapshot {
	var targets []targetDTO
	for _, vtSymbol := range instruments.GetAllSymbols() {
		t, ok := instruments.GetInstrument(vtSymbol)
		if !ok {
			continue
		}
		bars := make([]barDTO, 0, len(t.Bars))
		for _, b := range t.Bars {
			bars = append(bars, barDTO{
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
				Datetime: markedTime(b.Datetime),
			})
		}
		targets = append(targets, targetDTO{
			VtSymbol:       t.VtSymbol,
			Bars:           bars,
			Indicators:     map[string]float64(t.Indicators),
			LastUpdateTime: markedTime(t.LastUpdateTime),
		})
	}

	var positionsOut []positionDTO
	for _, p := range positions.GetAllPositions() {
		positionsOut = append(positionsOut, positionDTO{
			VtSymbol:           p.VtSymbol,
			UnderlyingVtSymbol: p.UnderlyingVtSymbol,
			Signal:             p.Signal,
			TargetVolume:       p.TargetVolume,
			Volume:             p.Volume,
			AvgPrice:           p.AvgPrice,
			OpenedAt:           markedTime(p.OpenedAt),
			Closed:             p.Closed,
			ManuallyClosedQty:  p.ManuallyClosedQty,
		})
	}

	var ordersOut []trackedOrderDTO
	for _, o := range positions.GetAllPendingOrders() {
		ordersOut = append(ordersOut, trackedOrderDTO{
			VtOrderID: o.VtOrderID,
			VtSymbol:  o.VtSymbol,
			IsOpen:    o.IsOpen,
			Volume:    o.Volume,
			Traded:    o.Traded,
			Status:    string(o.Status),
		})
	}

	byContract, global, tradingDate := positions.DailyCounters()

	return Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       markedTime(now),
		CurrentDT:     markedTime(now),
		TargetAggregate: instrumentAggregateDTO{
			Targets:         targets,
			ActiveContracts: instruments.ActiveContractsMap(),
		},
		PositionAggregate: positionAggregateDTO{
			Positions:           positionsOut,
			PendingOrders:       ordersOut,
			DailyOpenByContract: byContract,
			GlobalDailyOpen:     global,
			LastTradingDate:     tradingDate,
		},
	}
}

// ApplySnapshot clears instruments and positions and repopulates them from
// snap.
func ApplySnapshot(snap Snapshot, instruments *instrument.Aggregate, positions *position.Aggregate) {
	instruments.Clear()
	for _, td := range snap.TargetAggregate.Targets {
		bars := make([]barpipeline.Bar, 0, len(td.Bars))
		for _, b := range td.Bars {
			bars = append(bars, barpipeline.Bar{
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
				Datetime: time.Time(b.Datetime),
			})
		}
		instruments.RestoreTarget(&instrument.Target{
			VtSymbol:       td.VtSymbol,
			Bars:           bars,
			Indicators:     instrument.IndicatorSnapshot(td.Indicators),
			LastUpdateTime: time.Time(td.LastUpdateTime),
		})
	}
	for product, vtSymbol := range snap.TargetAggregate.ActiveContracts {
		instruments.SetActiveContract(product, vtSymbol)
	}

	positions.Clear()
	for _, pd := range snap.PositionAggregate.Positions {
		positions.RestorePosition(&position.Position{
			VtSymbol:           pd.VtSymbol,
			UnderlyingVtSymbol: pd.UnderlyingVtSymbol,
			Signal:             pd.Signal,
			TargetVolume:       pd.TargetVolume,
			Volume:             pd.Volume,
			AvgPrice:           pd.AvgPrice,
			OpenedAt:           time.Time(pd.OpenedAt),
			Closed:             pd.Closed,
			ManuallyClosedQty:  pd.ManuallyClosedQty,
		})
	}
	for _, od := range snap.PositionAggregate.PendingOrders {
		positions.RestorePendingOrder(&position.TrackedOrder{
			VtOrderID: od.VtOrderID,
			VtSymbol:  od.VtSymbol,
			IsOpen:    od.IsOpen,
			Volume:    od.Volume,
			Traded:    od.Traded,
			Status:    position.OrderStatus(od.Status),
		})
	}
	positions.RestoreDailyCounters(
		snap.PositionAggregate.DailyOpenByContract,
		snap.PositionAggregate.GlobalDailyOpen,
		snap.PositionAggregate.LastTradingDate,
	)
}

// Marshal serializes snap to its on-disk JSON form.
func Marshal(snap Snapshot) ([]byte, error) { return json.Marshal(snap) }

// Unmarshal parses the on-disk JSON form back into a Snapshot.
func Unmarshal(data []byte) (Snapshot, error) {
	var snap Snapshot
	err := json.Unmarshal(data, &snap)
	return snap, err
}

// VerifyIntegrity reports whether data parses as JSON and carries a
// schema_version field, without fully reconstructing the snapshot. Mirrors
// the original's lightweight verify_integrity check: a cheaper pass than a
// full Unmarshal, usable on rows whose shape might predate the current
// schema.
func VerifyIntegrity(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, ok := probe["schema_version"]
	return ok
}
