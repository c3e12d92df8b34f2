package template

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type upsertRequest struct {
	LocationID  int64   `json:"locationId"`
	Name        string  `json:"name"`
	HolidayCode *string `json:"holidayCode,omitempty"`
}

type setQuantityRequest struct {
	ItemID        int64 `json:"itemId"`
	StartQuantity int   `json:"startQuantity"`
}

// Handlers provides HTTP handlers for template operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new template handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers template routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.PUT("/:id/items", h.SetItemQuantity)
	g.DELETE("/:id/items/:itemId", h.RemoveItem)
}

// List returns a location's templates.
// GET /api/v1/templates?locationId=
func (h *Handlers) List(c echo.Context) error {
	locationID, err := strconv.ParseInt(c.QueryParam("locationId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId is required")
	}

	templates, err := h.service.List(c.Request().Context(), locationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, templates)
}

// Get returns one template with its lines.
// GET /api/v1/templates/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}

	tmpl, err := h.service.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tmpl)
}

// Create creates a template.
// POST /api/v1/templates
func (h *Handlers) Create(c echo.Context) error {
	var req upsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId and name are required")
	}

	id, err := h.service.Create(c.Request().Context(), req.LocationID, req.Name, req.HolidayCode)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	tmpl, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, tmpl)
}

// Update renames a template.
// PUT /api/v1/templates/:id
func (h *Handlers) Update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}

	var req upsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	if err := h.service.Update(c.Request().Context(), id, req.Name, req.HolidayCode); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes a template and its lines.
// DELETE /api/v1/templates/:id
func (h *Handlers) Delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// SetItemQuantity upserts one template line.
// PUT /api/v1/templates/:id/items
func (h *Handlers) SetItemQuantity(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}

	var req setQuantityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ItemID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "itemId is required")
	}

	if err := h.service.SetItemQuantity(c.Request().Context(), id, req.ItemID, req.StartQuantity); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveItem removes one template line.
// DELETE /api/v1/templates/:id/items/:itemId
func (h *Handlers) RemoveItem(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	if err := h.service.RemoveItem(c.Request().Context(), id, itemID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
