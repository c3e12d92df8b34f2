package api

import (
	"github.com/pitstock/pitstock/internal/audit"
	"github.com/pitstock/pitstock/internal/auth"
	"github.com/pitstock/pitstock/internal/catalog"
	"github.com/pitstock/pitstock/internal/counter"
	"github.com/pitstock/pitstock/internal/jobs"
	"github.com/pitstock/pitstock/internal/pos"
	"github.com/pitstock/pitstock/internal/template"
	"github.com/pitstock/pitstock/internal/weekplan"
)

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	// Live updates for register tablets
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")

	// Auth routes (public)
	authHandlers := auth.NewHandlers(s.authService)
	authHandlers.RegisterRoutes(api.Group("/auth"))

	// Everything else requires a session
	protected := api.Group("")
	protected.Use(authHandlers.Middleware())

	authHandlers.RegisterProtectedRoutes(protected.Group("/auth"))

	catalogHandlers := catalog.NewHandlers(s.catalogService, s.hub)
	catalogHandlers.RegisterRoutes(protected.Group("/catalog"))

	templateHandlers := template.NewHandlers(s.templateService)
	templateHandlers.RegisterRoutes(protected.Group("/templates"))

	counterHandlers := counter.NewHandlers(s.counterService, s.hub)
	counterHandlers.RegisterRoutes(protected.Group("/counters"))

	weekplanHandlers := weekplan.NewHandlers(s.weekplanService)
	weekplanHandlers.RegisterRoutes(protected.Group("/weekplans"))

	auditHandlers := audit.NewHandlers(s.auditService)
	auditHandlers.RegisterRoutes(protected.Group("/audit"))

	jobHandlers := jobs.NewHandlers(s.jobsRepo, s.resetScheduler, s.applyQueue)
	jobHandlers.RegisterRoutes(protected.Group("/jobs"))

	// POS link flow: the vendor redirect hits the callback unauthenticated
	posHandlers := pos.NewHandlers(s.posAuth, s.credStore, s.posClient, s.hub)
	api.GET("/pos/callback", posHandlers.Callback)
	posHandlers.RegisterRoutes(protected.Group("/pos"))
}
