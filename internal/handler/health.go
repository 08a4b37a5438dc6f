package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readinessTimeout = 3 * time.Second

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db     HealthChecker
	cache  HealthChecker
	logger *slog.Logger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil when the
// service runs without Redis.
func NewHealthHandler(db, cache HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Database string            `json:"database,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness probe. It checks no dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports 200 only when every configured dependency answers.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{
		"postgres": h.check(ctx, "postgres", h.db),
		"redis":    h.check(ctx, "redis", h.cache),
	}

	status, code := "ok", http.StatusOK
	for _, v := range checks {
		if v == "unavailable" {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}

// Database reports database connectivity.
//
// GET /health/db
func (h *HealthHandler) Database(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if state := h.check(ctx, "postgres", h.db); state != "ok" {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "error", Database: "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "connected"})
}

func (h *HealthHandler) check(ctx context.Context, name string, c HealthChecker) string {
	if c == nil {
		return "not configured"
	}
	if err := c.Ping(ctx); err != nil {
		h.logger.Warn("dependency check failed",
			slog.String("dependency", name),
			slog.String("error", err.Error()),
		)
		return "unavailable"
	}
	return "ok"
}
