package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestHealthChecker_Register(t *testing.T) {
	hc := NewHealthChecker()

	hc.Register(HealthCheck{
		Name: "database",
		Check: func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusHealthy}
		},
	})

	results := hc.Check(context.Background())
	if len(results) != 1 {
		t.Fatalf("Check() returned %d results, want 1", len(results))
	}
	if results["database"].Status != HealthStatusHealthy {
		t.Errorf("Status = %s, want healthy", results["database"].Status)
	}
}

func TestHealthChecker_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
	}{
		{"all healthy", []HealthStatus{HealthStatusHealthy, HealthStatusHealthy}, HealthStatusHealthy},
		{"one degraded", []HealthStatus{HealthStatusHealthy, HealthStatusDegraded}, HealthStatusDegraded},
		{"one unhealthy", []HealthStatus{HealthStatusDegraded, HealthStatusUnhealthy}, HealthStatusUnhealthy},
		{"no checks", nil, HealthStatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for i, status := range tt.statuses {
				s := status
				hc.Register(HealthCheck{
					Name: "check-" + string(rune('a'+i)),
					Check: func(ctx context.Context) HealthCheckResult {
						return HealthCheckResult{Status: s}
					},
				})
			}

			if got := hc.OverallStatus(context.Background()); got != tt.want {
				t.Errorf("OverallStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHealthChecker_Cache(t *testing.T) {
	var calls int
	var mu sync.Mutex

	hc := NewHealthChecker()
	hc.Register(HealthCheck{
		Name:   "storage",
		Cached: true,
		TTL:    time.Minute,
		Check: func(ctx context.Context) HealthCheckResult {
			mu.Lock()
			calls++
			mu.Unlock()
			return HealthCheckResult{Status: HealthStatusHealthy}
		},
	})

	hc.Check(context.Background())
	hc.Check(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("cached check executed %d times, want 1", calls)
	}
}

func TestHealthChecker_Handler(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(HealthCheck{
		Name: "database",
		Check: func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusHealthy, Message: "database reachable"}
		},
	})

	w := httptest.NewRecorder()
	hc.Handler()(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Status string                       `json:"status"`
		Checks map[string]HealthCheckResult `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %s, want healthy", body.Status)
	}
	if body.Checks["database"].Message != "database reachable" {
		t.Errorf("message = %q", body.Checks["database"].Message)
	}
}

func TestHealthChecker_Handler_Unhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(HealthCheck{
		Name: "database",
		Check: func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusUnhealthy}
		},
	})

	w := httptest.NewRecorder()
	hc.Handler()(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != 503 {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

func TestDatabaseHealthCheck(t *testing.T) {
	check := DatabaseHealthCheck("database", fakePinger{}, time.Second)
	result := check.Check(context.Background())
	if result.Status != HealthStatusHealthy {
		t.Errorf("Status = %s, want healthy", result.Status)
	}

	check = DatabaseHealthCheck("database", fakePinger{err: errors.New("gone")}, time.Second)
	result = check.Check(context.Background())
	if result.Status != HealthStatusUnhealthy {
		t.Errorf("Status = %s, want unhealthy", result.Status)
	}
}

func TestStorageHealthCheck(t *testing.T) {
	dir := t.TempDir()

	result := StorageHealthCheck("storage", dir).Check(context.Background())
	if result.Status != HealthStatusHealthy {
		t.Errorf("Status = %s, want healthy", result.Status)
	}

	result = StorageHealthCheck("storage", filepath.Join(dir, "missing")).Check(context.Background())
	if result.Status != HealthStatusUnhealthy {
		t.Errorf("Status = %s, want unhealthy for missing root", result.Status)
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result = StorageHealthCheck("storage", file).Check(context.Background())
	if result.Status != HealthStatusUnhealthy {
		t.Errorf("Status = %s, want unhealthy for non-directory root", result.Status)
	}
}

func TestHealthChecker_ConcurrentChecks(t *testing.T) {
	hc := NewHealthChecker()
	for _, name := range []string{"a", "b", "c", "d"} {
		hc.Register(HealthCheck{
			Name: name,
			Check: func(ctx context.Context) HealthCheckResult {
				time.Sleep(10 * time.Millisecond)
				return HealthCheckResult{Status: HealthStatusHealthy}
			},
		})
	}

	start := time.Now()
	results := hc.Check(context.Background())
	elapsed := time.Since(start)

	if len(results) != 4 {
		t.Fatalf("Check() returned %d results, want 4", len(results))
	}
	// Sequential execution would take at least 40ms.
	if elapsed > 35*time.Millisecond {
		t.Errorf("checks took %v, expected parallel execution", elapsed)
	}
}
