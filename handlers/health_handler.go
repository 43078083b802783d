package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/upb/market-gateway/repositories"
	"github.com/upb/market-gateway/utils"
	"go.uber.org/zap"
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"

	// maxDiagnosticLength bounds the error text reported per failing dependency
	maxDiagnosticLength = 200
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checks map[string]repositories.HealthChecker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are ignored.
func NewHealthHandler(checks map[string]repositories.HealthChecker, logger *zap.Logger) *HealthHandler {
	filtered := make(map[string]repositories.HealthChecker, len(checks))
	for name, check := range checks {
		if check != nil {
			filtered[name] = check
		}
	}
	return &HealthHandler{
		checks: filtered,
		logger: logger,
	}
}

// HandleHealth handles GET /health
// Liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteJSON(w, http.StatusOK, HealthResponse{Status: statusUp}); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness handles GET /ready
// Readiness check - probes every durable dependency
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name].HealthCheck(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = truncate(err.Error(), maxDiagnosticLength)
			healthy = false
			continue
		}
		checks[name] = statusUp
	}

	status, code := statusUp, http.StatusOK
	if !healthy {
		status, code = statusDown, http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, code, HealthResponse{Status: status, Checks: checks}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
