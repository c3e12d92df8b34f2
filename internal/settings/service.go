// Package settings provides access to the string key/value settings table.
package settings

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a setting key has no stored value.
var ErrNotFound = errors.New("setting not found")

// Well-known setting keys.
const (
	KeyJWTSecret    = "auth_jwt_secret"
	KeyPINHash      = "auth_pin_hash"
	KeySecretSalt   = "secret_store_salt"
	KeyPOSToken     = "pos_access_token"
	KeyPOSRefresh   = "pos_refresh_token"
	KeyPOSMerchant  = "pos_merchant_id"
	KeyPOSBaseURL   = "pos_base_url"
	KeyPKCEVerifier = "pos_pkce_verifier"
)

// Service reads and writes settings rows.
type Service struct {
	db *sql.DB
}

// NewService creates a new settings service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any existing value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

// Consume returns the value stored under key and deletes it in the same
// transaction. Used for one-shot state such as the PKCE verifier.
func (s *Service) Consume(ctx context.Context, key string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return "", err
	}

	return value, tx.Commit()
}
