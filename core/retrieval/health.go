package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/siherrmann/graphrag/helper"
	"golang.org/x/sync/errgroup"
)

// HealthStatus is the state of a component or of the whole engine
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck probes one backing store or service. A failing critical
// check makes the engine unhealthy, any other failing check degraded.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status  HealthStatus  `json:"status"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthReport is the result of all checks
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// HealthChecker runs health checks concurrently, each with its own timeout
type HealthChecker struct {
	checks  []HealthCheck
	timeout time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

// NewHealthChecker creates a checker, timeout <= 0 uses five seconds
func NewHealthChecker(timeout time.Duration, metrics *Metrics, logger *slog.Logger, checks ...HealthCheck) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	return &HealthChecker{
		checks:  checks,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Check runs every check and aggregates the overall status
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	results := make([]ComponentHealth, len(h.checks))

	var g errgroup.Group
	for i, check := range h.checks {
		g.Go(func() error {
			results[i] = h.run(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:     HealthStatusHealthy,
		Components: make(map[string]ComponentHealth, len(h.checks)),
		CheckedAt:  time.Now(),
	}
	for i, check := range h.checks {
		report.Components[check.Name] = results[i]
		h.metrics.recordHealth(check.Name, results[i].Status == HealthStatusHealthy)
		if results[i].Status == HealthStatusHealthy {
			continue
		}
		h.logger.Warn("Health check failed", slog.String("check", check.Name), slog.String("error", results[i].Error))
		if check.Critical {
			report.Status = HealthStatusUnhealthy
		} else if report.Status == HealthStatusHealthy {
			report.Status = HealthStatusDegraded
		}
	}
	return report
}

func (h *HealthChecker) run(ctx context.Context, check HealthCheck) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := ComponentHealth{Status: HealthStatusHealthy, Latency: time.Since(start)}
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = err.Error()
	}
	return result
}
