package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pitstock/pitstock/internal/pos"
)

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Handlers provides HTTP handlers for locations and items.
type Handlers struct {
	service *Service
	events  Broadcaster
}

// NewHandlers creates a new catalog handlers instance. events may be nil.
func NewHandlers(service *Service, events Broadcaster) *Handlers {
	return &Handlers{service: service, events: events}
}

// RegisterRoutes registers catalog routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/locations", h.ListLocations)
	g.POST("/locations", h.CreateLocation)
	g.GET("/locations/:id", h.GetLocation)
	g.PUT("/locations/:id", h.UpdateLocation)
	g.GET("/locations/:id/items", h.ListItems)
	g.POST("/locations/:id/sync", h.SyncItems)
	g.POST("/items", h.CreateItem)
	g.DELETE("/items/:id", h.DeleteItem)
}

func pathID(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// ListLocations returns all locations.
// GET /api/v1/catalog/locations
func (h *Handlers) ListLocations(c echo.Context) error {
	locs, err := h.service.ListLocations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, locs)
}

// GetLocation returns one location.
// GET /api/v1/catalog/locations/:id
func (h *Handlers) GetLocation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}

	loc, err := h.service.GetLocation(c.Request().Context(), id)
	if errors.Is(err, ErrLocationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "location not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loc)
}

// CreateLocation creates a location.
// POST /api/v1/catalog/locations
func (h *Handlers) CreateLocation(c echo.Context) error {
	var loc Location
	if err := c.Bind(&loc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.CreateLocation(c.Request().Context(), loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateLocation updates a location's name, timezone or open time.
// PUT /api/v1/catalog/locations/:id
func (h *Handlers) UpdateLocation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}

	var loc Location
	if err := c.Bind(&loc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	loc.ID = id

	if err := h.service.UpdateLocation(c.Request().Context(), loc); err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "location not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListItems returns a location's items.
// GET /api/v1/catalog/locations/:id/items
func (h *Handlers) ListItems(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}

	items, err := h.service.ListItems(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// SyncItems pulls the POS item catalog into the location.
// POST /api/v1/catalog/locations/:id/sync
func (h *Handlers) SyncItems(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}

	result, err := h.service.SyncItems(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pos.ErrNotLinked):
			return echo.NewHTTPError(http.StatusConflict, "POS account is not linked")
		case errors.Is(err, ErrLocationNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "location not found")
		default:
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}

	if h.events != nil {
		h.events.Broadcast("catalog:synced", result)
	}
	return c.JSON(http.StatusOK, result)
}

// CreateItem creates a local item.
// POST /api/v1/catalog/items
func (h *Handlers) CreateItem(c echo.Context) error {
	var item Item
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.CreateItem(c.Request().Context(), item)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

// DeleteItem removes a local item.
// DELETE /api/v1/catalog/items/:id
func (h *Handlers) DeleteItem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	if err := h.service.DeleteItem(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
