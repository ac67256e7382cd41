package observability

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthChecker performs health checks on dependencies
type HealthChecker struct {
	checks  map[string]HealthCheckFunc
	cache   map[string]*HealthCheck
	mu      sync.RWMutex
	ttl     time.Duration
	service string
	version string
}

// HealthCheckFunc is a function that performs a health check
type HealthCheckFunc func(context.Context) *HealthCheck

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		cache:   make(map[string]*HealthCheck),
		ttl:     5 * time.Second, // Cache health checks for 5 seconds
		service: service,
		version: version,
	}
}

// Register registers a health check
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	results := make(map[string]*HealthCheck)
	now := time.Now()

	for name, checkFunc := range hc.checks {
		// Check if cached result is still valid
		if cached, exists := hc.cache[name]; exists {
			if now.Sub(cached.LastChecked) < hc.ttl {
				results[name] = cached
				continue
			}
		}

		// Perform the check
		result := checkFunc(ctx)
		result.LastChecked = time.Now()

		// Cache the result
		hc.cache[name] = result
		results[name] = result
	}

	return results
}

// GetOverallStatus determines the overall health status
func (hc *HealthChecker) GetOverallStatus(ctx context.Context) HealthStatus {
	return overallStatus(hc.Check(ctx))
}

func overallStatus(checks map[string]*HealthCheck) HealthStatus {
	hasUnhealthy := false
	hasDegraded := false

	for _, check := range checks {
		switch check.Status {
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

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
	Metadata  map[string]interface{}  `json:"metadata,omitempty"`
}

// GetHealthResponse returns a complete health response
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)

	return &HealthResponse{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Checks:    checks,
		Metadata: map[string]interface{}{
			"version": hc.version,
			"service": hc.service,
		},
	}
}

// Common health check functions

// pingTimeout bounds every dependency ping so /health stays responsive
const pingTimeout = 2 * time.Second

// pingCheck wraps a ping; failure reports whenDown because every caller here is optional
func pingCheck(name, label string, whenDown HealthStatus, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		start := time.Now()
		err := ping(ctx)
		check := &HealthCheck{Name: name, Duration: time.Since(start)}

		if err != nil {
			check.Status = whenDown
			check.Message = fmt.Sprintf("%s unreachable: %v", label, err)
			return check
		}

		check.Status = HealthStatusHealthy
		check.Message = label + " reachable"
		check.Metadata = map[string]interface{}{"response_time_ms": check.Duration.Milliseconds()}
		return check
	}
}

// DatabaseHealthCheck pings the query history database. Queries keep working
// without history, so an outage only degrades the service.
func DatabaseHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("database", "History database", HealthStatusDegraded, ping)
}

// RedisHealthCheck pings Redis. Without it responses are not cached and
// logout cannot revoke tokens, which is degraded rather than down.
func RedisHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("redis", "Redis", HealthStatusDegraded, ping)
}

// DatasetHealthCheck reports whether the data directory is readable and how many datasets it holds
func DatasetHealthCheck(listFunc func() (int, error)) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()
		count, err := listFunc()
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:     "datasets",
				Status:   HealthStatusUnhealthy,
				Message:  fmt.Sprintf("Data directory unavailable: %v", err),
				Duration: duration,
			}
		}

		// No CSV yet is not fatal: users can still upload one.
		if count == 0 {
			return &HealthCheck{
				Name:     "datasets",
				Status:   HealthStatusDegraded,
				Message:  "No datasets uploaded yet",
				Duration: duration,
			}
		}

		return &HealthCheck{
			Name:     "datasets",
			Status:   HealthStatusHealthy,
			Message:  "Datasets available",
			Duration: duration,
			Metadata: map[string]interface{}{
				"count": count,
			},
		}
	}
}

// MemoryHealthCheck creates a health check for memory usage
func MemoryHealthCheck(getMemoryUsage func() (used, total uint64)) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		used, total := getMemoryUsage()
		usagePercent := 0.0
		if total > 0 {
			usagePercent = float64(used) / float64(total) * 100
		}

		status := HealthStatusHealthy
		message := "Memory usage normal"

		if usagePercent > 90 {
			status = HealthStatusUnhealthy
			message = "Memory usage critical"
		} else if usagePercent > 75 {
			status = HealthStatusDegraded
			message = "Memory usage high"
		}

		return &HealthCheck{
			Name:    "memory",
			Status:  status,
			Message: message,
			Metadata: map[string]interface{}{
				"used_bytes":    used,
				"total_bytes":   total,
				"usage_percent": usagePercent,
			},
		}
	}
}

// RuntimeMemoryUsage reports heap usage against a fixed budget
func RuntimeMemoryUsage(budget uint64) func() (used, total uint64) {
	return func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.HeapAlloc, budget
	}
}
