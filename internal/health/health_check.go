package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/store"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	kv     store.KeyValueStore
	logger *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(kv store.KeyValueStore, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		kv:     kv,
		logger: logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkKeyValueStore(ctx); err != nil {
		h.logger.Error("Key-value store health check failed", zap.Error(err))
		checks["kv_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["kv_store"] = "healthy"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

// checkKeyValueStore checks if the backing key-value store is healthy
func (h *HealthChecker) checkKeyValueStore(ctx context.Context) error {
	if h.kv == nil {
		return nil // Skip if not initialized
	}
	return h.kv.Ping(ctx)
}
