package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const notConfigured = "not configured"

// Pinger is a dependency the extended health check can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker handles health check requests
type HealthChecker struct {
	db           Pinger
	durableStore Pinger
	backend      string
	log          *zap.Logger
}

// NewHealthChecker creates a health checker. durableStore may be nil when rate limiting is memory only.
func NewHealthChecker(db, durableStore Pinger, backend string, log *zap.Logger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthChecker{db: db, durableStore: durableStore, backend: backend, log: log}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles /healthz; ?mode=extended probes the database and the durable rate limit store
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if r.URL.Query().Get("mode") != "extended" {
		respondJSON(w, http.StatusOK, response)
		return
	}

	checks := map[string]string{"ratelimit_backend": h.backend}

	if h.db == nil {
		checks["database"] = notConfigured
	} else if err := ping(r.Context(), h.db); err != nil {
		response.Status = "unhealthy"
		checks["database"] = "unhealthy: " + err.Error()
		h.log.Warn("health_check_database_failed", zap.Error(err))
	} else {
		checks["database"] = "healthy"
	}

	// Uploads keep flowing on the memory fallback, so a dead durable store only degrades
	if h.durableStore == nil {
		checks["ratelimit_store"] = notConfigured
	} else if err := ping(r.Context(), h.durableStore); err != nil {
		checks["ratelimit_store"] = "degraded: " + err.Error()
		h.log.Warn("health_check_ratelimit_store_failed", zap.Error(err))
	} else {
		checks["ratelimit_store"] = "healthy"
	}

	response.Checks = checks
	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, response)
}

func ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.Ping(ctx)
}
