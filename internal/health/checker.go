// Package health runs the console's self checks.
//
// The same checkers back two surfaces:
//   - `taspa doctor`, which prints every result and exits non-zero when any
//     check is unhealthy
//   - the dashboard's probe endpoints (/livez, /readyz) next to /metrics
//
// Example usage:
//
//	manager := health.NewManager()
//	manager.AddChecker(health.NewConfigChecker(cfg, path))
//	manager.AddChecker(health.NewAPIChecker(client, cfg.APIBase))
//
//	for _, r := range manager.Check(ctx) {
//	    logger.Info("health check", "name", r.Name, "status", r.Status)
//	}
package health

import (
	"context"
	"time"
)

// Checker defines the interface for health checks.
type Checker interface {
	// Name returns the unique name of this health check, lowercase with
	// hyphens (e.g., "api-reachable").
	Name() string

	// Check performs the health check. It should respect the context
	// deadline.
	Check(ctx context.Context) *Result
}

// Status represents the health check status.
type Status string

const (
	// StatusHealthy indicates the checked component is fully operational.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates the console works with reduced functionality,
	// e.g. a stored token that has already expired but may still refresh.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy indicates the console cannot work until this is fixed.
	StatusUnhealthy Status = "unhealthy"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Result represents the result of a health check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// NewResult creates a new health check result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail to the result and returns the result for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithLatency sets the latency and returns the result for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

// Healthy creates a healthy result with the given message.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded creates a degraded result with the given message.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy creates an unhealthy result with the given message.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
