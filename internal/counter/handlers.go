package counter

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

type soldRequest struct {
	LocationID int64  `json:"locationId"`
	ItemID     int64  `json:"itemId"`
	Date       string `json:"date"`
	Delta      int    `json:"delta"`
}

type applyRequest struct {
	TemplateID int64  `json:"templateId"`
	LocationID int64  `json:"locationId"`
	Date       string `json:"date"`
}

type closeRequest struct {
	LocationID int64  `json:"locationId"`
	Date       string `json:"date"`
}

// Handlers provides HTTP handlers for counter operations.
type Handlers struct {
	service *Service
	events  Broadcaster
}

// NewHandlers creates a new counter handlers instance. events may be nil.
func NewHandlers(service *Service, events Broadcaster) *Handlers {
	return &Handlers{service: service, events: events}
}

// RegisterRoutes registers counter routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/sold", h.RecordSold)
	g.POST("/adjust", h.Adjust)
	g.POST("/apply", h.ApplyTemplate)
	g.POST("/close", h.CloseDay)
}

// List returns a location's counters for a date. With no date it falls
// back to the most recent counted day.
// GET /api/v1/counters?locationId=&date=
func (h *Handlers) List(c echo.Context) error {
	ctx := c.Request().Context()

	locationID, err := strconv.ParseInt(c.QueryParam("locationId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId is required")
	}

	date := c.QueryParam("date")
	if date == "" {
		date, err = h.service.MostRecentDate(ctx, locationID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if date == "" {
			return c.JSON(http.StatusOK, []*Counter{})
		}
	}

	counters, err := h.service.ListForDate(ctx, locationID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counters)
}

// RecordSold bumps an item's sold count.
// POST /api/v1/counters/sold
func (h *Handlers) RecordSold(c echo.Context) error {
	var req soldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.ItemID == 0 || req.Date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId, itemId and date are required")
	}

	if err := h.service.RecordSold(c.Request().Context(), req.LocationID, req.ItemID, req.Date, req.Delta); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.notify(req.LocationID, req.ItemID, req.Date)
	return c.NoContent(http.StatusNoContent)
}

// Adjust applies a manual correction to an item's count.
// POST /api/v1/counters/adjust
func (h *Handlers) Adjust(c echo.Context) error {
	var req soldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.ItemID == 0 || req.Date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId, itemId and date are required")
	}

	if err := h.service.Adjust(c.Request().Context(), req.LocationID, req.ItemID, req.Date, req.Delta); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.notify(req.LocationID, req.ItemID, req.Date)
	return c.NoContent(http.StatusNoContent)
}

// ApplyTemplate seeds a day's counters from a template, outside the
// scheduled reset.
// POST /api/v1/counters/apply
func (h *Handlers) ApplyTemplate(c echo.Context) error {
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TemplateID == 0 || req.LocationID == 0 || req.Date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "templateId, locationId and date are required")
	}

	result, err := h.service.ApplyTemplateForDate(c.Request().Context(), req.TemplateID, req.LocationID, req.Date)
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if result.Outcome == OutcomeApplied {
		h.notify(req.LocationID, 0, req.Date)
	}
	return c.JSON(http.StatusOK, result)
}

// CloseDay stamps a location's counters closed for a date.
// POST /api/v1/counters/close
func (h *Handlers) CloseDay(c echo.Context) error {
	var req closeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.Date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId and date are required")
	}

	if err := h.service.CloseDay(c.Request().Context(), req.LocationID, req.Date); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.notify(req.LocationID, 0, req.Date)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) notify(locationID, itemID int64, date string) {
	if h.events == nil {
		return
	}
	payload := map[string]interface{}{
		"locationId": locationID,
		"date":       date,
	}
	if itemID != 0 {
		payload["itemId"] = itemID
	}
	h.events.Broadcast("counter:updated", payload)
}
