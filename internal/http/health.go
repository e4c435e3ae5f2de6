package http

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/lifecycle"
	"github.com/kjstillabower/afternoon-temperature-service/internal/traffic"
)

// BreakerReporter exposes an upstream client's circuit breaker state.
type BreakerReporter interface {
	Provider() string
	BreakerState() string
}

// HealthConfig holds the thresholds and dependency checks for the health handler.
type HealthConfig struct {
	Thresholds traffic.Thresholds
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	Breakers  []BreakerReporter
}

type healthState struct {
	mu   sync.Mutex
	prev string
}

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// GetHealth handles GET /health. healthy is 200; every other status is 503.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus()

	h.health.mu.Lock()
	if prev := h.health.prev; prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.health.prev = result.Status
	h.health.mu.Unlock()

	status := http.StatusOK
	if result.Status != traffic.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	now := h.opts.Clock.Now()
	writeJSON(w, status, healthResponse{
		Status:    result.Status,
		Service:   serviceName,
		Version:   h.opts.Version,
		Uptime:    lifecycle.Uptime(now).Truncate(time.Second).String(),
		Checks:    checks,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates shutting-down > overloaded > degraded > healthy. An open
// breaker or an unreachable cache marks an otherwise healthy service degraded.
func (h *Handler) computeHealthStatus() (traffic.Health, map[string]string) {
	var th traffic.Thresholds
	if h.opts.Health != nil {
		th = h.opts.Health.Thresholds
	}
	th.ShuttingDown = lifecycle.IsShuttingDown()
	result := traffic.Evaluate(th)

	checks := map[string]string{}
	dependencyDown := ""
	if h.opts.Health != nil {
		for _, b := range h.opts.Health.Breakers {
			if b.BreakerState() == "open" {
				checks[b.Provider()] = "unhealthy"
				dependencyDown = "circuit_open"
			} else {
				checks[b.Provider()] = "healthy"
			}
		}
		if h.opts.Health.CachePing != nil {
			if err := h.opts.Health.CachePing(); err != nil {
				checks["cache"] = "unhealthy"
				dependencyDown = "cache_unreachable"
			} else {
				checks["cache"] = "healthy"
			}
		}
	}
	if result.Status == traffic.StatusHealthy && dependencyDown != "" {
		result = traffic.Health{Status: traffic.StatusDegraded, Reason: dependencyDown}
	}
	return result, checks
}
