package pos

import (
	"context"
	"errors"

	"github.com/pitstock/pitstock/internal/secrets"
	"github.com/pitstock/pitstock/internal/settings"
)

// Credentials are the stored POS link: bearer token, refresh token and
// merchant id. They are encrypted at rest.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	MerchantID   string
}

// Linked reports whether the stored link is usable for API calls.
func (c Credentials) Linked() bool {
	return c.AccessToken != "" && c.MerchantID != ""
}

// CredentialStore persists POS credentials encrypted in the settings table.
// It also implements TokenSource for the API client.
type CredentialStore struct {
	settings *settings.Service
	secrets  *secrets.Store
}

// NewCredentialStore creates a credential store.
func NewCredentialStore(svc *settings.Service, store *secrets.Store) *CredentialStore {
	return &CredentialStore{settings: svc, secrets: store}
}

// Save encrypts and stores the credentials. Empty fields are preserved
// from the existing link so a token refresh does not drop the merchant id.
func (cs *CredentialStore) Save(ctx context.Context, creds Credentials) error {
	existing, err := cs.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotLinked) {
		return err
	}

	if creds.AccessToken == "" {
		creds.AccessToken = existing.AccessToken
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = existing.RefreshToken
	}
	if creds.MerchantID == "" {
		creds.MerchantID = existing.MerchantID
	}

	pairs := map[string]string{
		settings.KeyPOSToken:    creds.AccessToken,
		settings.KeyPOSRefresh:  creds.RefreshToken,
		settings.KeyPOSMerchant: creds.MerchantID,
	}
	for key, value := range pairs {
		encrypted, err := cs.secrets.Encrypt(value)
		if err != nil {
			return err
		}
		if err := cs.settings.Set(ctx, key, encrypted); err != nil {
			return err
		}
	}
	return nil
}

// Load decrypts the stored credentials. Returns ErrNotLinked when no
// usable link exists.
func (cs *CredentialStore) Load(ctx context.Context) (Credentials, error) {
	var creds Credentials

	read := func(key string) (string, error) {
		stored, err := cs.settings.Get(ctx, key)
		if errors.Is(err, settings.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return cs.secrets.Decrypt(stored)
	}

	var err error
	if creds.AccessToken, err = read(settings.KeyPOSToken); err != nil {
		return Credentials{}, err
	}
	if creds.RefreshToken, err = read(settings.KeyPOSRefresh); err != nil {
		return Credentials{}, err
	}
	if creds.MerchantID, err = read(settings.KeyPOSMerchant); err != nil {
		return Credentials{}, err
	}

	if !creds.Linked() {
		return creds, ErrNotLinked
	}
	return creds, nil
}

// Clear removes the stored link.
func (cs *CredentialStore) Clear(ctx context.Context) error {
	for _, key := range []string{settings.KeyPOSToken, settings.KeyPOSRefresh, settings.KeyPOSMerchant} {
		if err := cs.settings.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Token implements TokenSource.
func (cs *CredentialStore) Token(ctx context.Context) (string, error) {
	creds, err := cs.Load(ctx)
	if errors.Is(err, ErrNotLinked) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}
