package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrArchiveNotFound is returned by Load when no snapshot has ever been
// saved for a strategy name.
var ErrArchiveNotFound = errors.New("persistence: no archived snapshot for strategy")

// CorruptionError wraps a JSON decode failure on an archived snapshot,
// naming the strategy whose row could not be parsed.
type CorruptionError struct {
	StrategyName string
	Err          error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("persistence: corrupted snapshot for %q: %v", e.StrategyName, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// StateRepository is the append-only strategy_state table: every Save is
// an INSERT, never an UPDATE, so prior snapshots remain available for
// forensics even after a newer one is written.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository wraps db. The caller is responsible for having already
// applied the schema (C19's migration step creates strategy_state).
func NewStateRepository(db *sql.DB) *StateRepository { return &StateRepository{db: db} }

// Save appends snap as a new row for strategyName.
func (r *StateRepository) Save(strategyName string, snap Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO strategy_state (strategy_name, snapshot_json, schema_version, saved_at) VALUES (?, ?, ?, ?)`,
		strategyName, string(data), snap.SchemaVersion, time.Time(snap.SavedAt),
	)
	if err != nil {
		return fmt.Errorf("insert strategy_state: %w", err)
	}
	return nil
}

// Load returns strategyName's most recently saved snapshot. It returns
// ErrArchiveNotFound if no row exists, or a *CorruptionError if the latest
// row's JSON cannot be parsed.
func (r *StateRepository) Load(strategyName string) (Snapshot, error) {
	var snapshotJSON string
	err := r.db.QueryRow(
		`SELECT snapshot_json FROM strategy_state WHERE strategy_name = ? ORDER BY saved_at DESC LIMIT 1`,
		strategyName,
	).Scan(&snapshotJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrArchiveNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query strategy_state: %w", err)
	}

	snap, err := Unmarshal([]byte(snapshotJSON))
	if err != nil {
		return Snapshot{}, &CorruptionError{StrategyName: strategyName, Err: err}
	}
	return snap, nil
}

// VerifyIntegrity reports whether strategyName's latest row is parseable
// JSON carrying a schema_version field. It returns false (with no error)
// if no row exists at all.
func (r *StateRepository) VerifyIntegrity(strategyName string) (bool, error) {
	var snapshotJSON string
	err := r.db.QueryRow(
		`SELECT snapshot_json FROM strategy_state WHERE strategy_name = ? ORDER BY saved_at DESC LIMIT 1`,
		strategyName,
	).Scan(&snapshotJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query strategy_state: %w", err)
	}
	return VerifyIntegrity([]byte(snapshotJSON)), nil
}

// Cleanup deletes strategyName's rows older than keepDays (relative to
// now), returning the number of rows removed. A keepDays <= 0 defaults to
// 7, mirroring the reference retention window.
func (r *StateRepository) Cleanup(strategyName string, keepDays int, now time.Time) (int64, error) {
	if keepDays <= 0 {
		keepDays = 7
	}
	cutoff := now.AddDate(0, 0, -keepDays)
	res, err := r.db.Exec(
		`DELETE FROM strategy_state WHERE strategy_name = ? AND saved_at < ?`,
		strategyName, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete strategy_state: %w", err)
	}
	return res.RowsAffected()
}

// SnapshotFunc lazily builds the snapshot to persist; AutoSaveService only
// calls it once it has decided a save is actually due, avoiding the
// serialization cost on every bar.
type SnapshotFunc func() Snapshot

// AutoSaveService saves a strategy's state at most once per interval,
// timed against the timestamps it's driven with rather than its own clock
// reads, so behavior is identical whether driven live (the worker passes
// wall-clock time) or against historical data.
type AutoSaveService struct {
	repo         *StateRepository
	strategyName string
	interval     time.Duration
	lastSave     time.Time
	snapshotFn   SnapshotFunc
}

// NewAutoSaveService returns a timer gated at interval (default 60s when
// <= 0), starting as if it just saved at startedAt so the first bar
// doesn't immediately trigger a save.
func NewAutoSaveService(repo *StateRepository, strategyName string, interval time.Duration, startedAt time.Time, snapshotFn SnapshotFunc) *AutoSaveService {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &AutoSaveService{repo: repo, strategyName: strategyName, interval: interval, lastSave: startedAt, snapshotFn: snapshotFn}
}

// MaybeSave saves only if interval has elapsed since the last save,
// satisfying strategy.AutoSaver.
func (s *AutoSaveService) MaybeSave(now time.Time) error {
	if now.Sub(s.lastSave) < s.interval {
		return nil
	}
	return s.doSave(now)
}

// ForceSave saves unconditionally, for use on shutdown.
func (s *AutoSaveService) ForceSave(now time.Time) error { return s.doSave(now) }

// Reset rewinds the timer to now without saving, for use after a manual
// save elsewhere has already captured current state.
func (s *AutoSaveService) Reset(now time.Time) { s.lastSave = now }

func (s *AutoSaveService) doSave(now time.Time) error {
	snap := s.snapshotFn()
	if err := s.repo.Save(s.strategyName, snap); err != nil {
		log.Printf("autosave failed [%s]: %v", s.strategyName, err)
		return err
	}
	s.lastSave = now
	return nil
}
