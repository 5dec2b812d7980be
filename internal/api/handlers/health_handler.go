// Package handlers contains HTTP handlers for the health and metrics
// surface. The JSON-RPC surface (room join, playback, queue operations)
// lives entirely in internal/rpc; this package only exposes the
// operator-facing /health and /metrics endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/services/system"
	"listenify.dev/syncengine/internal/utils"
)

// HealthHandler handles HTTP requests related to system health.
type HealthHandler struct {
	logger    *utils.Logger
	healthSvc *system.HealthService
	config    *config.Config
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(logger *utils.Logger, healthSvc *system.HealthService, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		logger:    logger.Named("health_handler"),
		healthSvc: healthSvc,
		config:    cfg,
	}
}

// Check reports the aggregate health of the durable and ephemeral stores.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	health := h.healthSvc.GetHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status != system.StatusUp {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		h.logger.Error("failed to encode health response", err)
	}
}

// DetailedCheck reports system health alongside the running environment,
// used by operators diagnosing a specific instance.
func (h *HealthHandler) DetailedCheck(w http.ResponseWriter, r *http.Request) {
	health := h.healthSvc.GetHealth(r.Context())

	response := map[string]any{
		"health":      health,
		"environment": h.config.Environment,
	}

	statusCode := http.StatusOK
	if health.Status != system.StatusUp {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode detailed health response", err)
	}
}
