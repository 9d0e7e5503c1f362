package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labtrack_api_requests_total",
		Help: "Total number of outgoing API requests",
	}, []string{"method", "path", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labtrack_api_request_duration_seconds",
		Help:    "Duration of outgoing API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labtrack_token_refreshes_total",
		Help: "Count of silent token refresh attempts by trigger and result",
	}, []string{"trigger", "result"})

	retriedAfterRefresh = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labtrack_requests_retried_after_refresh_total",
		Help: "Count of requests replayed after a 401-triggered refresh",
	})

	forcedLogouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labtrack_forced_logouts_total",
		Help: "Count of sessions torn down after an unrecoverable 401",
	})

	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labtrack_reconcile_runs_total",
		Help: "Count of instance reconciliation runs by result",
	}, []string{"result"})

	reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labtrack_reconcile_duration_seconds",
		Help:    "Duration of instance reconciliation runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "labtrack_backend_breaker_state",
		Help: "Circuit breaker state for the backend (0=closed, 1=open, 2=half-open)",
	})
)

// ObserveAPIRequest records one outgoing request
func ObserveAPIRequest(method, path, status string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, path, status).Inc()
	apiRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveRefresh records a silent refresh attempt.
// trigger is "interceptor", "keepalive" or "checkauth".
func ObserveRefresh(trigger, result string) {
	tokenRefreshes.WithLabelValues(trigger, result).Inc()
}

// ObserveRetryAfterRefresh increments the replayed-request counter
func ObserveRetryAfterRefresh() {
	retriedAfterRefresh.Inc()
}

// ObserveForcedLogout increments the forced-logout counter
func ObserveForcedLogout() {
	forcedLogouts.Inc()
}

// ObserveReconcile records one reconciliation run with its result
func ObserveReconcile(result string, duration time.Duration) {
	reconcileRuns.WithLabelValues(result).Inc()
	reconcileDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetBreakerState publishes the backend breaker state
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}
