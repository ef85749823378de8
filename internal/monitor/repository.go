package monitor

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"optioncore/internal/persistence"
)

// Repository is the monitor_signal_snapshot/monitor_signal_event tables.
// Grounded on persistence.StateRepository's plain *sql.DB-over-? idiom,
// but unlike that append-only table, snapshots here are upserted (one
// live row per variant/instance) since only the latest state matters to
// the dashboard, while events remain append-only for the event stream.
type Repository struct {
	db      *sql.DB
	batcher *persistence.BatchWriter // nil unless EnableEventBatching was called
}

// NewRepository wraps db. The caller must have already applied the schema
// (C19's ApplyMigrations creates both tables). RecordEvent writes directly
// until EnableEventBatching turns on buffered writes for the event table.
func NewRepository(db *sql.DB) *Repository { return &Repository{db: db} }

// EnableEventBatching routes RecordEvent through a persistence.BatchWriter
// instead of writing each event synchronously, so a burst of domain events
// (e.g. several GammaScalpEvents in one window) shares a single
// transaction instead of serializing one write per event. Close must be
// called on shutdown to flush anything still buffered.
func (r *Repository) EnableEventBatching(maxSize int, flushInterval time.Duration) {
	r.batcher = persistence.NewBatchWriter(r.db, maxSize, flushInterval)
}

// Close stops event batching, if enabled, flushing any buffered events.
func (r *Repository) Close() error {
	if r.batcher == nil {
		return nil
	}
	return r.batcher.Close()
}

// UpsertSnapshot replaces the latest row for (variant, instanceID) with
// payload, marshaled to JSON.
func (r *Repository) UpsertSnapshot(variant, instanceID string, payload any, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal monitor snapshot: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO monitor_signal_snapshot (variant, instance_id, payload_json, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(variant, instance_id) DO UPDATE SET
		   payload_json = excluded.payload_json,
		   updated_at = excluded.updated_at`,
		variant, instanceID, string(data), now,
	)
	if err != nil {
		return fmt.Errorf("upsert monitor_signal_snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the raw JSON payload and its last-updated time
// for (variant, instanceID). Returns sql.ErrNoRows if no snapshot has ever
// been written.
func (r *Repository) LatestSnapshot(variant, instanceID string) (string, time.Time, error) {
	var payload string
	var updatedAt time.Time
	err := r.db.QueryRow(
		`SELECT payload_json, updated_at FROM monitor_signal_snapshot WHERE variant = ? AND instance_id = ?`,
		variant, instanceID,
	).Scan(&payload, &updatedAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return payload, updatedAt, nil
}

// RecordEvent appends one event row, ignoring (not erroring on) a
// duplicate idempotencyKey so the same DomainEvent can safely be reported
// more than once (e.g. a subscriber retried after a transient DB error).
func (r *Repository) RecordEvent(idempotencyKey, variant, instanceID, vtSymbol, eventType string, payload any, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}

	query := `INSERT OR IGNORE INTO monitor_signal_event
		   (idempotency_key, variant, instance_id, vt_symbol, event_type, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`
	args := []any{idempotencyKey, variant, instanceID, vtSymbol, eventType, string(data), now}

	if r.batcher != nil {
		r.batcher.WriteQuery(query, args...)
		return nil
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("insert monitor_signal_event: %w", err)
	}
	return nil
}

// EventRow is one row read back from monitor_signal_event.
type EventRow struct {
	VtSymbol    string    `json:"vt_symbol"`
	EventType   string    `json:"event_type"`
	PayloadJSON string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// Events returns up to limit rows for (variant, instanceID), newest first.
func (r *Repository) Events(variant, instanceID string, limit int) ([]EventRow, error) {
	rows, err := r.db.Query(
		`SELECT vt_symbol, event_type, payload_json, created_at
		   FROM monitor_signal_event
		  WHERE variant = ? AND instance_id = ?
		  ORDER BY created_at DESC
		  LIMIT ?`,
		variant, instanceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query monitor_signal_event: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.VtSymbol, &e.EventType, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan monitor_signal_event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
