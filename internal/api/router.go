// Package api provides the operator-facing HTTP surface: health checks and
// Prometheus metrics. The engine's actual client-facing surface (room
// join/leave, playback, queue) is JSON-RPC over WebSocket, served by
// internal/rpc; this package exists only so an orchestrator can probe
// liveness and scrape metrics without speaking JSON-RPC.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"listenify.dev/syncengine/internal/api/handlers"
	appMiddleware "listenify.dev/syncengine/internal/api/middleware"
	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/services/system"
	"listenify.dev/syncengine/internal/utils"
)

// Router is the HTTP router for the health and metrics surface.
type Router struct {
	*chi.Mux
	logger *utils.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(healthService *system.HealthService, metricsService *system.MetricsService, cfg *config.Config, logger *utils.Logger) *Router {
	r := chi.NewRouter()
	apiLogger := logger.Named("api")

	recoveryMiddleware := appMiddleware.NewRecoveryMiddleware(apiLogger)
	loggerMiddleware := appMiddleware.NewLoggerMiddleware(apiLogger)
	healthHandler := handlers.NewHealthHandler(apiLogger, healthService, cfg)

	r.Use(recoveryMiddleware.Recovery)
	r.Use(loggerMiddleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/health", healthHandler.Check)
	r.Get("/health/detailed", healthHandler.DetailedCheck)
	r.Handle("/metrics", metricsService.Handler())

	return &Router{Mux: r, logger: apiLogger}
}
