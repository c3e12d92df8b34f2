package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newHandlerFixture(t *testing.T) (*Handlers, *Service, func()) {
	t.Helper()
	svc, _, cleanup := newTestAuth(t)
	return NewHandlers(svc), svc, cleanup
}

func doJSON(e *echo.Echo, method, path, body, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSetupFlow(t *testing.T) {
	h, svc, cleanup := newHandlerFixture(t)
	defer cleanup()

	e := echo.New()
	h.RegisterRoutes(e.Group("/auth"))

	// Status before setup.
	rec := doJSON(e, http.MethodGet, "/auth/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.RequiresSetup {
		t.Error("RequiresSetup = false, want true")
	}

	// Setup from localhost issues a token.
	rec = doJSON(e, http.MethodPost, "/auth/setup", `{"pin":"1234"}`, "127.0.0.1:54321")
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var login LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if _, err := svc.ValidateToken(login.Token); err != nil {
		t.Errorf("setup token invalid: %v", err)
	}

	// A second setup attempt is rejected.
	rec = doJSON(e, http.MethodPost, "/auth/setup", `{"pin":"5678"}`, "127.0.0.1:54321")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("re-setup status = %d, want 400", rec.Code)
	}
}

func TestSetupRejectedFromRemote(t *testing.T) {
	h, _, cleanup := newHandlerFixture(t)
	defer cleanup()

	e := echo.New()
	h.RegisterRoutes(e.Group("/auth"))

	rec := doJSON(e, http.MethodPost, "/auth/setup", `{"pin":"1234"}`, "192.168.1.50:54321")
	if rec.Code != http.StatusForbidden {
		t.Errorf("remote setup status = %d, want 403", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	h, svc, cleanup := newHandlerFixture(t)
	defer cleanup()

	e := echo.New()
	h.RegisterRoutes(e.Group("/auth"))

	// Before setup.
	rec := doJSON(e, http.MethodPost, "/auth/login", `{"pin":"1234"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("pre-setup login status = %d, want 400", rec.Code)
	}

	if err := svc.SetPIN(context.Background(), "1234"); err != nil {
		t.Fatalf("SetPIN() error = %v", err)
	}

	rec = doJSON(e, http.MethodPost, "/auth/login", `{"pin":"9999"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong-pin login status = %d, want 401", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/auth/login", `{"pin":"1234"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var login LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if _, err := svc.ValidateToken(login.Token); err != nil {
		t.Errorf("login token invalid: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	h, svc, cleanup := newHandlerFixture(t)
	defer cleanup()

	e := echo.New()
	protected := e.Group("/api")
	protected.Use(h.Middleware())
	protected.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no-token status = %d, want 401", rec.Code)
	}

	// Malformed header.
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("malformed-header status = %d, want 401", rec.Code)
	}

	// Valid token.
	token, err := svc.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid-token status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestChangePIN(t *testing.T) {
	h, svc, cleanup := newHandlerFixture(t)
	defer cleanup()
	ctx := context.Background()

	if err := svc.SetPIN(ctx, "1234"); err != nil {
		t.Fatalf("SetPIN() error = %v", err)
	}

	e := echo.New()
	h.RegisterProtectedRoutes(e.Group("/auth"))

	rec := doJSON(e, http.MethodPost, "/auth/pin", `{"currentPin":"9999","newPin":"5678"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current pin status = %d, want 401", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/auth/pin", `{"currentPin":"1234","newPin":"5678"}`, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("change pin status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if err := svc.ValidatePIN(ctx, "5678"); err != nil {
		t.Errorf("ValidatePIN(new) error = %v", err)
	}
}
