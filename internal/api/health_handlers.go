package api

import (
	"net/http"
	"time"
)

// ArchiveState reports how access and audit records are being persisted.
// *archive.Client satisfies it.
type ArchiveState interface {
	Configured() bool
	Mode() string
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	archive        ArchiveState
	metricsEnabled bool
	now            func() time.Time
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	Archive        ArchiveState
	MetricsEnabled bool
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		archive:        config.Archive,
		metricsEnabled: config.MetricsEnabled,
		now:            time.Now,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 whenever the process can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe).
//
// Fallback mode does not make the server unready: records still reach the
// local sink, and running without a bucket is the normal development setup.
// Only a missing archiver fails the probe, since every request would then go
// unrecorded.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status, statusCode := "healthy", http.StatusOK

	if h.archive == nil {
		checks["archive"] = "missing"
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["archive"] = h.archive.Mode()
	}

	if h.metricsEnabled {
		checks["metrics"] = "ok"
	} else {
		checks["metrics"] = "disabled"
	}

	writeJSON(r.Context(), w, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
