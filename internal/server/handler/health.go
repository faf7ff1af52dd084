package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/resaledash/internal/service"
)

// StatusSource reports operational self-monitoring.
type StatusSource interface {
	Status(ctx context.Context, logLimit int) (service.StatusReport, error)
}

// HealthHandler serves the liveness and status endpoints.
type HealthHandler struct {
	status StatusSource
	mode   string
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. status may be nil, in which
// case /api/status is unavailable.
func NewHealthHandler(status StatusSource, mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{status: status, mode: mode, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status returns every service_health row and the newest health_logs.
// GET /api/status?logs=50
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}
	limit, err := intParam(r, "logs", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.status.Status(r.Context(), min(limit, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: status failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
