package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/collabsync/internal/store"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	ctrl    SessionController
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. ctrl may be nil.
func NewHealthHandler(repo store.Repository, ctrl SessionController) *HealthHandler {
	return &HealthHandler{repo: repo, ctrl: ctrl, timeout: 5 * time.Second}
}

// Health returns the health status of the daemon and its dependencies.
// A disconnected session degrades the report but never fails it: the daemon
// is still able to retry.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.ctrl != nil {
		s := h.ctrl.Status()
		checks["session"] = string(s.State)
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
