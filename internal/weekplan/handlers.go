package weekplan

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type setRequest struct {
	LocationID int64  `json:"locationId"`
	WeekStart  string `json:"weekStart"`
	ItemID     int64  `json:"itemId"`
	Day        Day    `json:"day"`
	Quantity   int    `json:"quantity"`
}

type prefillRequest struct {
	LocationID int64  `json:"locationId"`
	WeekStart  string `json:"weekStart"`
	TemplateID int64  `json:"templateId,omitempty"`
}

// Handlers provides HTTP handlers for week plan operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new week plan handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers week plan routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.PUT("", h.Set)
	g.DELETE("", h.Clear)
	g.POST("/prefill", h.Prefill)
}

// List returns a location's plan rows for one week.
// GET /api/v1/weekplans?locationId=&weekStart=
func (h *Handlers) List(c echo.Context) error {
	locationID, err := strconv.ParseInt(c.QueryParam("locationId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId is required")
	}
	weekStart := c.QueryParam("weekStart")
	if weekStart == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "weekStart is required")
	}

	rows, err := h.service.List(c.Request().Context(), locationID, weekStart)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

// Set upserts one planned quantity.
// PUT /api/v1/weekplans
func (h *Handlers) Set(c echo.Context) error {
	var req setRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.WeekStart == "" || req.ItemID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId, weekStart and itemId are required")
	}

	if err := h.service.Set(c.Request().Context(), req.LocationID, req.WeekStart, req.ItemID, req.Day, req.Quantity); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear removes a location's plan for one week.
// DELETE /api/v1/weekplans?locationId=&weekStart=
func (h *Handlers) Clear(c echo.Context) error {
	locationID, err := strconv.ParseInt(c.QueryParam("locationId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId is required")
	}
	weekStart := c.QueryParam("weekStart")
	if weekStart == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "weekStart is required")
	}

	if err := h.service.Clear(c.Request().Context(), locationID, weekStart); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Prefill seeds a week's defaults from a template.
// POST /api/v1/weekplans/prefill
func (h *Handlers) Prefill(c echo.Context) error {
	var req prefillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.WeekStart == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId and weekStart are required")
	}

	filled, err := h.service.PrefillFromTemplate(c.Request().Context(), req.LocationID, req.WeekStart, req.TemplateID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"filled": filled})
}
