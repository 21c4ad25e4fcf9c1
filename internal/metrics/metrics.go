package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh results recorded in RefreshAttempts.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	// RefreshShared counts callers that waited on a refresh another caller
	// started, or found the token already replaced.
	RefreshShared = "shared"
	// RefreshDiscarded counts exchanges whose token was dropped because the
	// credential changed while they ran.
	RefreshDiscarded = "discarded"
)

// Metrics holds all Prometheus metrics for the taspa client.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
type Metrics struct {
	// API client metrics
	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIRetries         prometheus.Counter
	RefreshAttempts    *prometheus.CounterVec

	// Session metrics
	SessionTransitions *prometheus.CounterVec
	LoginAttempts      *prometheus.CounterVec
	DetachedFailures   *prometheus.CounterVec

	// Navigation metrics
	GuardDecisions *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_api_requests_total",
				Help: "Total number of logical API calls by outcome",
			},
			[]string{"method", "outcome"},
		),
		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taspa_api_request_duration_seconds",
				Help:    "Duration of logical API calls, including refresh and retry",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method"},
		),
		APIRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "taspa_api_retries_total",
				Help: "Total number of requests retried after a token refresh",
			},
		),
		RefreshAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_token_refreshes_total",
				Help: "Token refresh outcomes (success, failure, shared)",
			},
			[]string{"result"},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_session_transitions_total",
				Help: "Session state transitions",
			},
			[]string{"from", "to"},
		),
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"success"},
		),
		DetachedFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_detached_task_failures_total",
				Help: "Failures of best-effort background calls",
			},
			[]string{"task"},
		),

		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_route_decisions_total",
				Help: "Route guard outcomes by route",
			},
			[]string{"route", "outcome"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taspa_errors_total",
				Help: "Errors by structured error code",
			},
			[]string{"error_code"},
		),
	}
}

// ObserveRequest records one logical API call.
func (m *Metrics) ObserveRequest(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(method, outcome).Inc()
	m.APIRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncRetry records a retry after refresh.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.APIRetries.Inc()
}

// IncRefresh records a refresh outcome.
func (m *Metrics) IncRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshAttempts.WithLabelValues(result).Inc()
}

// IncTransition records a session state change.
func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// IncLogin records a login attempt.
func (m *Metrics) IncLogin(success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.LoginAttempts.WithLabelValues(label).Inc()
}

// IncDetachedFailure records a failed best-effort task.
func (m *Metrics) IncDetachedFailure(task string) {
	if m == nil {
		return
	}
	m.DetachedFailures.WithLabelValues(task).Inc()
}

// IncGuard records a route resolution.
func (m *Metrics) IncGuard(route, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(route, outcome).Inc()
}

// IncError records an error by code.
func (m *Metrics) IncError(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}
