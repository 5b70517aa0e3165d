package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	// HealthStatusHealthy indicates the component is fully operational.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates the component works but needs attention.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates the component is down.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name   string
	Check  func(context.Context) HealthCheckResult
	Cached bool
	TTL    time.Duration
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthChecker manages and executes health checks
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
	cache  map[string]*cachedHealthResult
}

type cachedHealthResult struct {
	result    HealthCheckResult
	timestamp time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]*HealthCheck),
		cache:  make(map[string]*cachedHealthResult),
	}
}

// Register registers a new health check
func (hc *HealthChecker) Register(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = &check
}

// Check executes all health checks and returns aggregate status
func (hc *HealthChecker) Check(ctx context.Context) map[string]HealthCheckResult {
	hc.mu.RLock()
	checks := make([]*HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	results := make(map[string]HealthCheckResult)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, check := range checks {
		wg.Add(1)
		go func(c *HealthCheck) {
			defer wg.Done()
			result := hc.executeCheck(ctx, c)
			mu.Lock()
			results[c.Name] = result
			mu.Unlock()
		}(check)
	}

	wg.Wait()
	return results
}

// executeCheck executes a single health check with caching
func (hc *HealthChecker) executeCheck(ctx context.Context, check *HealthCheck) HealthCheckResult {
	if check.Cached {
		hc.mu.RLock()
		cached, exists := hc.cache[check.Name]
		hc.mu.RUnlock()

		if exists && time.Since(cached.timestamp) < check.TTL {
			return cached.result
		}
	}

	result := check.Check(ctx)

	if check.Cached {
		hc.mu.Lock()
		hc.cache[check.Name] = &cachedHealthResult{
			result:    result,
			timestamp: time.Now(),
		}
		hc.mu.Unlock()
	}

	return result
}

// OverallStatus returns the aggregate health status
func (hc *HealthChecker) OverallStatus(ctx context.Context) HealthStatus {
	results := hc.Check(ctx)

	hasUnhealthy := false
	hasDegraded := false

	for _, result := range results {
		switch result.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return HealthStatusUnhealthy
	}
	if hasDegraded {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

// Handler returns an HTTP handler for health checks
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		results := hc.Check(ctx)
		overall := hc.OverallStatus(ctx)

		response := map[string]any{
			"status": overall,
			"checks": results,
		}

		w.Header().Set("Content-Type", "application/json")

		if overall == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			// Degraded still serves requests.
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// Pinger is the database handle surface the health check needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DatabaseHealthCheck creates a health check for the relational store
func DatabaseHealthCheck(name string, db Pinger, timeout time.Duration) HealthCheck {
	return HealthCheck{
		Name: name,
		Check: func(ctx context.Context) HealthCheckResult {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := db.PingContext(ctx); err != nil {
				return HealthCheckResult{
					Status:  HealthStatusUnhealthy,
					Message: "ping failed: " + err.Error(),
				}
			}
			return HealthCheckResult{
				Status:  HealthStatusHealthy,
				Message: "database reachable",
			}
		},
	}
}

// StorageHealthCheck creates a health check for the archive store root
func StorageHealthCheck(name, path string) HealthCheck {
	return HealthCheck{
		Name:   name,
		Cached: true,
		TTL:    30 * time.Second,
		Check: func(ctx context.Context) HealthCheckResult {
			info, err := os.Stat(path)
			if err != nil {
				return HealthCheckResult{
					Status:  HealthStatusUnhealthy,
					Message: "storage root missing: " + err.Error(),
				}
			}
			if !info.IsDir() {
				return HealthCheckResult{
					Status:  HealthStatusUnhealthy,
					Message: "storage root is not a directory",
					Details: map[string]string{"path": path},
				}
			}

			probe, err := os.CreateTemp(path, ".healthcheck-*")
			if err != nil {
				return HealthCheckResult{
					Status:  HealthStatusDegraded,
					Message: "storage root not writable: " + err.Error(),
					Details: map[string]string{"path": path},
				}
			}
			_ = probe.Close()
			_ = os.Remove(probe.Name())

			return HealthCheckResult{
				Status:  HealthStatusHealthy,
				Message: "storage writable",
			}
		},
	}
}
