// Package vault stores gateway API credentials encrypted at rest (C26),
// grounded on pkg/crypto's Encryptor/KeyManager and monitor.Repository's
// plain *sql.DB-over-? idiom.
package vault

import (
	"database/sql"
	"fmt"
	"time"

	"optioncore/pkg/crypto"
)

// Credential is one gateway connection's API key pair, decrypted.
// Plaintext fields must never be logged or persisted outside this package.
type Credential struct {
	ConnectionID string
	ExchangeType string
	APIKey       string
	APISecret    string
}

// Vault is the gateway_credentials table. The key manager's current
// version encrypts every write; Decrypt on read selects whichever
// version the stored ciphertext was written with, so a key rotation
// (KeyManager loading a new MASTER_ENCRYPTION_KEY_V(n+1)) doesn't
// invalidate previously stored rows.
//
// The schema carries its own key_version column rather than relying on
// pkg/crypto.ParseVersion's "ENC[vN]:..." prefix: ParseVersion is still
// used to decrypt, but key_version makes the version visible to
// operators via plain SQL without parsing the ciphertext, and is what a
// re-encryption sweep after a rotation would filter on.
type Vault struct {
	db  *sql.DB
	key *crypto.KeyManager
}

// New wraps db and key. The caller must have already applied the schema
// (db.ApplyMigrations creates gateway_credentials).
func New(db *sql.DB, key *crypto.KeyManager) *Vault {
	return &Vault{db: db, key: key}
}

// Store encrypts apiKey/apiSecret with the key manager's current version
// and upserts the row for connectionID.
func (v *Vault) Store(connectionID, exchangeType, apiKey, apiSecret string, now time.Time) error {
	keyCT, err := v.key.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	secretCT, err := v.key.Encrypt(apiSecret)
	if err != nil {
		return fmt.Errorf("encrypt api secret: %w", err)
	}

	_, err = v.db.Exec(
		`INSERT INTO gateway_credentials
		   (connection_id, exchange_type, api_key_ciphertext, api_secret_ciphertext, key_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(connection_id) DO UPDATE SET
		   exchange_type = excluded.exchange_type,
		   api_key_ciphertext = excluded.api_key_ciphertext,
		   api_secret_ciphertext = excluded.api_secret_ciphertext,
		   key_version = excluded.key_version,
		   updated_at = excluded.updated_at`,
		connectionID, exchangeType, keyCT, secretCT, v.key.CurrentVersion(), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert gateway_credentials: %w", err)
	}
	return nil
}

// Load decrypts and returns the credential for connectionID. Returns
// sql.ErrNoRows if no credential has been stored under that id.
func (v *Vault) Load(connectionID string) (Credential, error) {
	var c Credential
	var keyCT, secretCT string
	c.ConnectionID = connectionID

	err := v.db.QueryRow(
		`SELECT exchange_type, api_key_ciphertext, api_secret_ciphertext
		   FROM gateway_credentials WHERE connection_id = ?`,
		connectionID,
	).Scan(&c.ExchangeType, &keyCT, &secretCT)
	if err != nil {
		return Credential{}, err
	}

	c.APIKey, err = v.key.Decrypt(keyCT)
	if err != nil {
		return Credential{}, fmt.Errorf("decrypt api key: %w", err)
	}
	c.APISecret, err = v.key.Decrypt(secretCT)
	if err != nil {
		return Credential{}, fmt.Errorf("decrypt api secret: %w", err)
	}
	return c, nil
}

// Delete removes the row for connectionID, e.g. when a gateway
// connection is decommissioned. Not an error if no row existed.
func (v *Vault) Delete(connectionID string) error {
	_, err := v.db.Exec(`DELETE FROM gateway_credentials WHERE connection_id = ?`, connectionID)
	if err != nil {
		return fmt.Errorf("delete gateway_credentials: %w", err)
	}
	return nil
}
