package pos

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

type statusResponse struct {
	Linked     bool   `json:"linked"`
	MerchantID string `json:"merchantId,omitempty"`
}

// Handlers provides HTTP handlers for the POS link flow.
type Handlers struct {
	auth   *Authenticator
	creds  *CredentialStore
	client *Client
	events Broadcaster
}

// NewHandlers creates a new POS handlers instance. events may be nil.
func NewHandlers(auth *Authenticator, creds *CredentialStore, client *Client, events Broadcaster) *Handlers {
	return &Handlers{auth: auth, creds: creds, client: client, events: events}
}

// RegisterRoutes registers the authenticated POS routes on an Echo group.
// The OAuth callback is registered separately because the vendor redirect
// carries no session token.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/status", h.Status)
	g.POST("/link", h.StartLink)
	g.POST("/refresh", h.Refresh)
	g.DELETE("/link", h.Unlink)
}

// Status reports whether a POS account is linked.
// GET /api/v1/pos/status
func (h *Handlers) Status(c echo.Context) error {
	creds, err := h.creds.Load(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrNotLinked) {
			return c.JSON(http.StatusOK, statusResponse{Linked: false})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statusResponse{Linked: true, MerchantID: creds.MerchantID})
}

// StartLink begins the OAuth flow and returns the authorization URL.
// POST /api/v1/pos/link
func (h *Handlers) StartLink(c echo.Context) error {
	req, err := h.auth.BuildAuthURL(c.Request().Context(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

// Callback completes the OAuth flow with the vendor redirect.
// GET /api/v1/pos/callback?state=&code=
func (h *Handlers) Callback(c echo.Context) error {
	state := c.QueryParam("state")
	code := c.QueryParam("code")
	if state == "" || code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "state and code are required")
	}

	if err := h.auth.HandleCallback(c.Request().Context(), state, code); err != nil {
		switch {
		case errors.Is(err, ErrNoPendingAuth):
			return echo.NewHTTPError(http.StatusBadRequest, "no pending authorization")
		case errors.Is(err, ErrExchangeFailed):
			return echo.NewHTTPError(http.StatusBadGateway, "token exchange failed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	if h.events != nil {
		h.events.Broadcast("pos:linked", map[string]bool{"linked": true})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "POS account linked"})
}

// Refresh exchanges the refresh token for a new access token.
// POST /api/v1/pos/refresh
func (h *Handlers) Refresh(c echo.Context) error {
	if err := h.auth.Refresh(c.Request().Context()); err != nil {
		if errors.Is(err, ErrNotLinked) {
			return echo.NewHTTPError(http.StatusConflict, "POS account is not linked")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Unlink clears the stored credentials.
// DELETE /api/v1/pos/link
func (h *Handlers) Unlink(c echo.Context) error {
	if err := h.creds.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.events != nil {
		h.events.Broadcast("pos:linked", map[string]bool{"linked": false})
	}
	return c.NoContent(http.StatusNoContent)
}
