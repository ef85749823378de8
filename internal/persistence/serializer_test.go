package persistence

import (
	"testing"
	"time"

	"optioncore/internal/barpipeline"
	"optioncore/internal/events"
	"optioncore/internal/instrument"
	"optioncore/internal/position"
)

func TestBuildAndApplySnapshotRoundTrip(t *testing.T) {
	instruments := instrument.NewAggregate()
	now := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	instruments.UpdateBar("rb2501.SHFE", barpipeline.Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Datetime: now})
	instruments.SetActiveContract("rb", "rb2501.SHFE")

	positions := position.NewAggregate(events.NewDomainBus())
	p := positions.CreatePosition("rb2501C4000.SHFE", "rb2501.SHFE", "long", 3)
	p.AddFill(3, 123.4, now)
	positions.AddPendingOrder(&position.TrackedOrder{VtOrderID: "o1", VtSymbol: "rb2501C4000.SHFE", IsOpen: true, Volume: 3, Status: position.StatusNotTraded})
	positions.RecordOpenUsage("rb2501C4000.SHFE", 3, 0, 0)

	snap := BuildSnapshot(instruments, positions, now)
	if snap.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", CurrentSchemaVersion, snap.SchemaVersion)
	}

	data, err := Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !VerifyIntegrity(data) {
		t.Fatal("expected serialized snapshot to pass integrity check")
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	freshInstruments := instrument.NewAggregate()
	freshPositions := position.NewAggregate(nil)
	ApplySnapshot(got, freshInstruments, freshPositions)

	if !freshInstruments.HasInstrument("rb2501.SHFE") {
		t.Fatal("expected restored instrument aggregate to carry rb2501.SHFE")
	}
	if active, ok := freshInstruments.GetActiveContract("rb"); !ok || active != "rb2501.SHFE" {
		t.Fatalf("expected restored active contract rb2501.SHFE, got %q (ok=%v)", active, ok)
	}
	restoredTarget, _ := freshInstruments.GetInstrument("rb2501.SHFE")
	if len(restoredTarget.Bars) != 1 || restoredTarget.Bars[0].Close != 1.5 {
		t.Fatalf("expected one restored bar with close 1.5, got %+v", restoredTarget.Bars)
	}
	if !restoredTarget.LastUpdateTime.Equal(now) {
		t.Fatalf("expected restored LastUpdateTime %v, got %v", now, restoredTarget.LastUpdateTime)
	}

	restoredPos, ok := freshPositions.GetPosition("rb2501C4000.SHFE")
	if !ok {
		t.Fatal("expected restored position rb2501C4000.SHFE")
	}
	if restoredPos.Volume != 3 || restoredPos.AvgPrice != 123.4 {
		t.Fatalf("expected restored position volume=3 avgPrice=123.4, got %+v", restoredPos)
	}
	if _, ok := freshPositions.GetPendingOrder("o1"); !ok {
		t.Fatal("expected restored pending order o1")
	}
	if freshPositions.GetDailyOpenVolume("rb2501C4000.SHFE") != 3 {
		t.Fatalf("expected restored daily open volume 3, got %d", freshPositions.GetDailyOpenVolume("rb2501C4000.SHFE"))
	}
}

func TestVerifyIntegrityRejectsCorruptPayload(t *testing.T) {
	if VerifyIntegrity([]byte("{not json")) {
		t.Fatal("expected corrupt payload to fail integrity check")
	}
	if VerifyIntegrity([]byte(`{"foo": "bar"}`)) {
		t.Fatal("expected payload without schema_version to fail integrity check")
	}
}

func TestMarkedTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := markedTime(now).MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got markedTime
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !time.Time(got).Equal(now) {
		t.Fatalf("expected %v, got %v", now, time.Time(got))
	}
}
