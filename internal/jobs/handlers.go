package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pitstock/pitstock/internal/catalog"
)

// Handlers provides HTTP handlers for job operations.
type Handlers struct {
	repo      *Repository
	scheduler *ResetScheduler
	queue     *ApplyQueue
}

// NewHandlers creates a new jobs handlers instance.
func NewHandlers(repo *Repository, scheduler *ResetScheduler, queue *ApplyQueue) *Handlers {
	return &Handlers{repo: repo, scheduler: scheduler, queue: queue}
}

// RegisterRoutes registers job routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/reset/schedule", h.ScheduleReset)
	g.POST("/apply", h.EnqueueApply)
}

// List returns recent jobs, newest first.
// GET /api/v1/jobs
func (h *Handlers) List(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	jobs, err := h.repo.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, jobs)
}

// Get returns a single job.
// GET /api/v1/jobs/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}

	job, err := h.repo.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, job)
}

type scheduleResetRequest struct {
	LocationID int64 `json:"locationId"`
}

// ScheduleReset arms the next daily reset for a location and returns
// the computed plan, or an alreadyDone marker when the target date's
// reset has completed and nothing was armed.
// POST /api/v1/jobs/reset/schedule
func (h *Handlers) ScheduleReset(c echo.Context) error {
	var req scheduleResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId is required")
	}

	plan, err := h.scheduler.Schedule(c.Request().Context(), req.LocationID)
	if errors.Is(err, catalog.ErrLocationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "location not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if plan == nil {
		return c.JSON(http.StatusOK, map[string]any{"alreadyDone": true})
	}
	return c.JSON(http.StatusOK, plan)
}

type enqueueApplyRequest struct {
	LocationID int64  `json:"locationId"`
	WeekStart  string `json:"weekStart"`
}

// EnqueueApply queues a stock push for a location and week.
// POST /api/v1/jobs/apply
func (h *Handlers) EnqueueApply(c echo.Context) error {
	var req enqueueApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LocationID == 0 || req.WeekStart == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "locationId and weekStart are required")
	}

	job, err := h.queue.Enqueue(c.Request().Context(), req.LocationID, req.WeekStart)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, job)
}
