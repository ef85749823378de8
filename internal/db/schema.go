package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS strategy_state (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_name TEXT NOT NULL,
	snapshot_json TEXT NOT NULL,
	schema_version INTEGER NOT NULL DEFAULT 1,
	saved_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategy_state_name_saved ON strategy_state(strategy_name, saved_at);

CREATE TABLE IF NOT EXISTS monitor_signal_snapshot (
	variant TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (variant, instance_id)
);

CREATE TABLE IF NOT EXISTS monitor_signal_event (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT NOT NULL UNIQUE,
	variant TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	vt_symbol TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_signal_event_variant ON monitor_signal_event(variant, instance_id, created_at);

CREATE TABLE IF NOT EXISTS gateway_credentials (
	connection_id TEXT PRIMARY KEY,
	exchange_type TEXT NOT NULL,
	api_key_ciphertext TEXT NOT NULL,
	api_secret_ciphertext TEXT NOT NULL,
	key_version INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// ApplyMigrations bootstraps the schema; kept idempotent via IF NOT EXISTS
// so it's safe to run on every process start.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
