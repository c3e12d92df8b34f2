package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/config"
	"github.com/pitstock/pitstock/internal/settings"
)

var (
	ErrNoPendingAuth  = errors.New("no pending authorization")
	ErrExchangeFailed = errors.New("token exchange failed")
)

// Authenticator runs the OAuth2 authorization-code flow with PKCE against
// the POS vendor auth endpoint.
type Authenticator struct {
	httpClient *http.Client
	config     config.POSConfig
	settings   *settings.Service
	creds      *CredentialStore
	logger     zerolog.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(cfg config.POSConfig, svc *settings.Service, creds *CredentialStore, logger zerolog.Logger) *Authenticator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	return &Authenticator{
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		config:     cfg,
		settings:   svc,
		creds:      creds,
		logger:     logger.With().Str("component", "pos-auth").Logger(),
	}
}

// AuthRequest is a prepared authorization redirect.
type AuthRequest struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// BuildAuthURL generates a PKCE verifier, persists it for the callback and
// returns the vendor authorization URL to redirect the operator to.
func (a *Authenticator) BuildAuthURL(ctx context.Context, scopes []string) (*AuthRequest, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	state := uuid.NewString()

	// One verifier at a time; a new link attempt replaces the previous one.
	if err := a.settings.Set(ctx, settings.KeyPKCEVerifier, state+":"+verifier); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", a.config.ClientID)
	params.Set("redirect_uri", a.config.RedirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", Challenge(verifier))
	params.Set("code_challenge_method", "S256")

	return &AuthRequest{
		URL:   a.config.AuthBaseURL + "/oauth/authorize?" + params.Encode(),
		State: state,
	}, nil
}

// HandleCallback consumes the stored verifier, exchanges the authorization
// code for tokens and saves the resulting credentials.
func (a *Authenticator) HandleCallback(ctx context.Context, state, code string) error {
	stored, err := a.settings.Consume(ctx, settings.KeyPKCEVerifier)
	if errors.Is(err, settings.ErrNotFound) {
		return ErrNoPendingAuth
	}
	if err != nil {
		return err
	}

	wantState, verifier, ok := strings.Cut(stored, ":")
	if !ok || wantState != state {
		return ErrNoPendingAuth
	}

	form := url.Values{}
	form.Set("client_id", a.config.ClientID)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("redirect_uri", a.config.RedirectURI)

	token, err := a.exchange(ctx, form)
	if err != nil {
		return err
	}
	if token.AccessToken == "" {
		return ErrExchangeFailed
	}

	if err := a.creds.Save(ctx, Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		MerchantID:   token.MerchantID,
	}); err != nil {
		return err
	}

	a.logger.Info().Str("merchantId", token.MerchantID).Msg("POS account linked")
	return nil
}

// Refresh exchanges the stored refresh token for a new access token.
func (a *Authenticator) Refresh(ctx context.Context) error {
	creds, err := a.creds.Load(ctx)
	if err != nil {
		return err
	}
	if creds.RefreshToken == "" {
		return ErrNotLinked
	}

	form := url.Values{}
	form.Set("client_id", a.config.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)

	token, err := a.exchange(ctx, form)
	if err != nil {
		return err
	}
	if token.AccessToken == "" {
		return ErrExchangeFailed
	}

	return a.creds.Save(ctx, Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})
}

func (a *Authenticator) exchange(ctx context.Context, form url.Values) (*TokenResponse, error) {
	endpoint := a.config.AuthBaseURL + "/oauth/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Error().Int("status", resp.StatusCode).Msg("token exchange rejected")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &token, nil
}
