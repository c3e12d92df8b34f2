// Package api wires the HTTP surface: middleware, routes and the service
// graph behind them.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/audit"
	"github.com/pitstock/pitstock/internal/auth"
	"github.com/pitstock/pitstock/internal/catalog"
	"github.com/pitstock/pitstock/internal/config"
	"github.com/pitstock/pitstock/internal/counter"
	"github.com/pitstock/pitstock/internal/jobs"
	"github.com/pitstock/pitstock/internal/pos"
	"github.com/pitstock/pitstock/internal/secrets"
	"github.com/pitstock/pitstock/internal/settings"
	"github.com/pitstock/pitstock/internal/template"
	"github.com/pitstock/pitstock/internal/weekplan"
	"github.com/pitstock/pitstock/internal/websocket"
)

// Server handles HTTP requests for the PitStock API.
type Server struct {
	echo   *echo.Echo
	db     *sql.DB
	hub    *websocket.Hub
	cfg    *config.Config
	clock  clockwork.Clock
	logger zerolog.Logger

	// Services
	settingsService *settings.Service
	authService     *auth.Service
	credStore       *pos.CredentialStore
	posClient       *pos.Client
	posAuth         *pos.Authenticator
	catalogService  *catalog.Service
	templateService *template.Service
	counterService  *counter.Service
	weekplanService *weekplan.Service
	auditService    *audit.Service

	// Jobs
	runtime        jobs.Runtime
	jobsRepo       *jobs.Repository
	resetScheduler *jobs.ResetScheduler
	applyQueue     *jobs.ApplyQueue
}

// NewServer creates a new API server instance and wires the service graph.
func NewServer(db *sql.DB, hub *websocket.Hub, cfg *config.Config, clock clockwork.Clock, runtime jobs.Runtime, secretStore *secrets.Store, logger zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		db:      db,
		hub:     hub,
		cfg:     cfg,
		clock:   clock,
		runtime: runtime,
		logger:  logger,
	}

	s.settingsService = settings.NewService(db)

	authService, err := auth.NewService(s.settingsService, cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}
	s.authService = authService

	// A configured PIN seeds first-time setup
	if cfg.Auth.PIN != "" && !authService.IsPINSet(context.Background()) {
		if err := authService.SetPIN(context.Background(), cfg.Auth.PIN); err != nil {
			return nil, err
		}
	}

	// POS link and API client
	s.credStore = pos.NewCredentialStore(s.settingsService, secretStore)
	s.posClient = pos.NewClient(cfg.POS, s.credStore, logger)
	s.posAuth = pos.NewAuthenticator(cfg.POS, s.settingsService, s.credStore, logger)

	// Domain services
	s.catalogService = catalog.NewService(db, s.posClient, s.credStore, logger)
	s.templateService = template.NewService(db, logger)
	s.counterService = counter.NewService(db, clock, logger)
	s.weekplanService = weekplan.NewService(db, logger)
	s.auditService = audit.NewService(db, clock, logger)

	// Job pipeline
	s.jobsRepo = jobs.NewRepository(db, clock, logger)
	s.jobsRepo.SetNotifier(hub)
	resetWorker := jobs.NewResetWorker(s.jobsRepo, s.templateService, s.counterService, s.auditService, logger)
	applyWorker := jobs.NewApplyWorker(s.jobsRepo, s.weekplanService, s.credStore, s.posClient, s.catalogService, s.auditService, clock, logger)
	s.resetScheduler = jobs.NewResetScheduler(s.jobsRepo, jobs.NewPlanner(clock), runtime, s.catalogService, resetWorker, logger)
	s.applyQueue = jobs.NewApplyQueue(s.jobsRepo, runtime, applyWorker, clock, logger)

	// Registers report sales over the socket
	hub.SetSoldHandler(func(p websocket.SoldPayload) error {
		return s.counterService.RecordSold(context.Background(), p.LocationID, p.ItemID, p.Date, p.Delta)
	})

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// ResetScheduler exposes the reset scheduler for boot-time arming.
func (s *Server) ResetScheduler() *jobs.ResetScheduler {
	return s.resetScheduler
}

// ApplyQueue exposes the apply queue for boot-time draining.
func (s *Server) ApplyQueue() *jobs.ApplyQueue {
	return s.applyQueue
}

// JobsRepository exposes the jobs store for maintenance tasks.
func (s *Server) JobsRepository() *jobs.Repository {
	return s.jobsRepo
}

// CatalogService exposes the catalog for the periodic POS sync.
func (s *Server) CatalogService() *catalog.Service {
	return s.catalogService
}

// TemplateService exposes templates for the first-run seed loader.
func (s *Server) TemplateService() *template.Service {
	return s.templateService
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// healthCheck returns basic liveness information.
// GET /health
func (s *Server) healthCheck(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
