// Package api provides HTTP handlers for the orchestrator.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/launchsignal/orchestrator/config"
	"github.com/launchsignal/orchestrator/eventbus"
	"github.com/launchsignal/orchestrator/planner"
	"github.com/launchsignal/orchestrator/saga"
	"github.com/launchsignal/orchestrator/service"
	"github.com/launchsignal/orchestrator/session"
)

// Handler handles HTTP requests.
type Handler struct {
	planner  *planner.Planner
	sagas    *saga.Engine
	sessions *session.Service
	meta     *service.Service
	bus      eventbus.Bus
	config   *config.Config
}

// NewHandler creates a new handler.
func NewHandler(pl *planner.Planner, engine *saga.Engine, sessions *session.Service, meta *service.Service, bus eventbus.Bus, cfg *config.Config) *Handler {
	return &Handler{
		planner:  pl,
		sagas:    engine,
		sessions: sessions,
		meta:     meta,
		bus:      bus,
		config:   cfg,
	}
}

// RegisterRoutes registers routes with the echo server. When an auth
// secret is configured, the v1 group requires a bearer token whose
// tenant_id claim matches the tenant the request touches.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")
	if h.config != nil && h.config.AuthSecret != "" {
		v1.Use(TenantAuth(h.config.AuthSecret))
	}

	v1.POST("/plans/generate", h.GeneratePlan)
	v1.POST("/plans/execute", h.ExecutePlan)

	v1.GET("/sagas/:saga_id", h.GetSaga)
	v1.GET("/sagas/tenant/:tenant_id", h.GetTenantSagas)

	v1.POST("/messages/interactive", h.InteractiveMessage)

	v1.GET("/sessions/:session_id/turns", h.GetSessionTurns)
	v1.GET("/sessions/:session_id/summary", h.GetSessionSummary)
	v1.DELETE("/sessions/:session_id", h.DeleteSession)

	v1.GET("/events/stats", h.GetEventStats)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// GetEventStats returns bus delivery counters.
// GET /v1/events/stats
func (h *Handler) GetEventStats(c echo.Context) error {
	if h.bus == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "event bus not available"})
	}
	return c.JSON(http.StatusOK, h.bus.Stats())
}
