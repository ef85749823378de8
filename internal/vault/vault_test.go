package vault

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"optioncore/pkg/crypto"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	const schema = `
	CREATE TABLE gateway_credentials (
		connection_id TEXT PRIMARY KEY,
		exchange_type TEXT NOT NULL,
		api_key_ciphertext TEXT NOT NULL,
		api_secret_ciphertext TEXT NOT NULL,
		key_version INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func testKeyManager(t *testing.T) *crypto.KeyManager {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	t.Setenv("MASTER_ENCRYPTION_KEY", key)
	km, err := crypto.NewKeyManager()
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	return km
}

func TestStoreThenLoadRoundTripsPlaintext(t *testing.T) {
	v := New(openTestDB(t), testKeyManager(t))
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	if err := v.Store("ctp-prod-1", "CTP", "ak-12345", "sekret-value", now); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := v.Load("ctp-prod-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ExchangeType != "CTP" || got.APIKey != "ak-12345" || got.APISecret != "sekret-value" {
		t.Fatalf("unexpected credential: %+v", got)
	}
}

func TestLoadUnknownConnectionReturnsErrNoRows(t *testing.T) {
	v := New(openTestDB(t), testKeyManager(t))
	if _, err := v.Load("missing"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestStoreOverwritesPriorCredentialForSameConnection(t *testing.T) {
	v := New(openTestDB(t), testKeyManager(t))
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	if err := v.Store("ctp-prod-1", "CTP", "ak-old", "secret-old", now); err != nil {
		t.Fatalf("first Store: %v", err)
	}
	if err := v.Store("ctp-prod-1", "CTP", "ak-new", "secret-new", now.Add(time.Minute)); err != nil {
		t.Fatalf("second Store: %v", err)
	}

	got, err := v.Load("ctp-prod-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.APIKey != "ak-new" || got.APISecret != "secret-new" {
		t.Fatalf("expected overwritten credential, got %+v", got)
	}
}

func TestDeleteRemovesCredential(t *testing.T) {
	v := New(openTestDB(t), testKeyManager(t))
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	if err := v.Store("ctp-prod-1", "CTP", "ak-12345", "sekret-value", now); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := v.Delete("ctp-prod-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Load("ctp-prod-1"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
}

func TestCiphertextNeverContainsPlaintextSecret(t *testing.T) {
	db := openTestDB(t)
	v := New(db, testKeyManager(t))
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	if err := v.Store("ctp-prod-1", "CTP", "ak-12345", "very-secret-value", now); err != nil {
		t.Fatalf("Store: %v", err)
	}

	var keyCT, secretCT string
	err := db.QueryRow(`SELECT api_key_ciphertext, api_secret_ciphertext FROM gateway_credentials WHERE connection_id = ?`, "ctp-prod-1").Scan(&keyCT, &secretCT)
	if err != nil {
		t.Fatalf("scan row: %v", err)
	}
	if keyCT == "ak-12345" || secretCT == "very-secret-value" {
		t.Fatalf("ciphertext columns contain plaintext: %s / %s", keyCT, secretCT)
	}
}
