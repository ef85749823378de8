package monitor

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	const schema = `
	CREATE TABLE monitor_signal_snapshot (
		variant TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (variant, instance_id)
	);
	CREATE TABLE monitor_signal_event (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		variant TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		vt_symbol TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func TestUpsertSnapshotReplacesPriorRow(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	t0 := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	if err := repo.UpsertSnapshot("vol-15m", "inst-1", map[string]int{"n": 1}, t0); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	t1 := t0.Add(time.Minute)
	if err := repo.UpsertSnapshot("vol-15m", "inst-1", map[string]int{"n": 2}, t1); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	payload, updatedAt, err := repo.LatestSnapshot("vol-15m", "inst-1")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if !strings.Contains(payload, `"n":2`) {
		t.Fatalf("expected latest payload to contain n:2, got %s", payload)
	}
	if !updatedAt.Equal(t1) {
		t.Fatalf("expected updated_at %v, got %v", t1, updatedAt)
	}
}

func TestRecordEventIgnoresDuplicateIdempotencyKey(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := repo.RecordEvent("dup-key", "vol-15m", "inst-1", "rb2410.SHFE", "OrderTimeoutEvent", map[string]string{"x": "y"}, now); err != nil {
			t.Fatalf("RecordEvent attempt %d: %v", i, err)
		}
	}

	rows, err := repo.Events("vol-15m", "inst-1", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row despite duplicate idempotency key, got %d", len(rows))
	}
}

func TestEventsOrderedNewestFirst(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	t0 := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	if err := repo.RecordEvent("k1", "vol-15m", "inst-1", "rb2410.SHFE", "RolloverEvent", nil, t0); err != nil {
		t.Fatalf("record k1: %v", err)
	}
	if err := repo.RecordEvent("k2", "vol-15m", "inst-1", "rb2410.SHFE", "RolloverEvent", nil, t0.Add(time.Second)); err != nil {
		t.Fatalf("record k2: %v", err)
	}

	rows, err := repo.Events("vol-15m", "inst-1", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].CreatedAt.After(rows[1].CreatedAt) {
		t.Fatalf("expected newest-first ordering, got %+v", rows)
	}
}
