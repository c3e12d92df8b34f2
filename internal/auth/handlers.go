package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type LoginRequest struct {
	PIN string `json:"pin"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type SetupRequest struct {
	PIN string `json:"pin"`
}

type ChangePINRequest struct {
	CurrentPIN string `json:"currentPin"`
	NewPIN     string `json:"newPin"`
}

type StatusResponse struct {
	RequiresSetup bool `json:"requiresSetup"`
	RequiresAuth  bool `json:"requiresAuth"`
}

// Handlers provides HTTP handlers for authentication.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new auth handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the public auth routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/status", h.Status)
	g.POST("/setup", h.Setup)
	g.POST("/login", h.Login)
}

// RegisterProtectedRoutes registers routes that require a valid session.
func (h *Handlers) RegisterProtectedRoutes(g *echo.Group) {
	g.POST("/pin", h.ChangePIN)
}

// Status reports whether first-time setup is still required.
// GET /api/v1/auth/status
func (h *Handlers) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		RequiresSetup: !h.service.IsPINSet(c.Request().Context()),
		RequiresAuth:  true,
	})
}

// Setup performs first-time PIN setup from localhost.
// POST /api/v1/auth/setup
func (h *Handlers) Setup(c echo.Context) error {
	ctx := c.Request().Context()

	if !isLocalRequest(c) {
		return echo.NewHTTPError(http.StatusForbidden, "setup must be performed from localhost")
	}
	if h.service.IsPINSet(ctx) {
		return echo.NewHTTPError(http.StatusBadRequest, "PIN already configured")
	}

	var req SetupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.SetPIN(ctx, req.PIN); err != nil {
		if errors.Is(err, ErrPINRequired) || errors.Is(err, ErrPINTooShort) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save PIN")
	}

	token, err := h.service.GenerateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}
	return c.JSON(http.StatusCreated, LoginResponse{Token: token})
}

// Login exchanges the admin PIN for a session token.
// POST /api/v1/auth/login
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PIN == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pin is required")
	}

	if err := h.service.ValidatePIN(c.Request().Context(), req.PIN); err != nil {
		switch {
		case errors.Is(err, ErrNoPINSet):
			return echo.NewHTTPError(http.StatusBadRequest, "setup required")
		case errors.Is(err, ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid PIN")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to validate PIN")
		}
	}

	token, err := h.service.GenerateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}
	return c.JSON(http.StatusOK, LoginResponse{Token: token})
}

// ChangePIN updates the admin PIN after verifying the current one.
// POST /api/v1/auth/pin
func (h *Handlers) ChangePIN(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChangePINRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ValidatePIN(ctx, req.CurrentPIN); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid PIN")
	}
	if err := h.service.SetPIN(ctx, req.NewPIN); err != nil {
		if errors.Is(err, ErrPINRequired) || errors.Is(err, ErrPINTooShort) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save PIN")
	}
	return c.NoContent(http.StatusNoContent)
}

// Middleware protects routes with session JWT authentication.
func (h *Handlers) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization token")
			}
			if _, err := h.service.ValidateToken(token); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			return next(c)
		}
	}
}

func isLocalRequest(c echo.Context) bool {
	ip := c.RealIP()
	return ip == "127.0.0.1" || ip == "::1" || strings.HasPrefix(ip, "localhost")
}

func extractBearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
