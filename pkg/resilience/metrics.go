package resilience

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Breaker and retry instrumentation. Breakers guard the outbound agent
// calls, so everything lives under the dispatch_ namespace alongside the
// simulator's own metrics.
var (
	breakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_circuit_breaker_state",
		Help: "Current breaker state (0=closed, 0.5=half-open, 1=open)",
	}, []string{"breaker"})

	breakerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_circuit_breaker_requests_total",
		Help: "Operations executed through a circuit breaker",
	}, []string{"breaker"})

	breakerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_circuit_breaker_failures_total",
		Help: "Breaker executions that returned an error",
	}, []string{"breaker"})

	breakerFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_circuit_breaker_fallbacks_total",
		Help: "Calls short-circuited to a fallback because the breaker was open",
	}, []string{"breaker"})

	breakerStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_circuit_breaker_state_changes_total",
		Help: "Breaker state transitions",
	}, []string{"breaker", "from", "to"})

	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_retry_attempts_total",
		Help: "Individual attempts across all retried operations",
	}, []string{"operation", "result"})

	retryOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_retry_operation_duration_seconds",
		Help:    "End-to-end duration of retried operations, all attempts included",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation", "result"})

	retryAttemptsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_retry_attempts_count",
		Help:    "Attempts taken before success or final failure",
		Buckets: []float64{1, 2, 3, 4, 5, 10},
	}, []string{"operation", "result"})

	retryBackoffDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_retry_backoff_duration_seconds",
		Help:    "Backoff delays slept between retry attempts",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"operation"})

	breakerIDCounter uint64
)

// nextBreakerName hands unnamed breakers a stable unique label
func nextBreakerName(base string) string {
	if base != "" {
		return base
	}
	id := atomic.AddUint64(&breakerIDCounter, 1)
	return "breaker-" + strconv.FormatUint(id, 10)
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return -1
	}
}

func recordBreakerState(name string, state gobreaker.State) {
	breakerStateGauge.WithLabelValues(name).Set(breakerStateValue(state))
}

func recordBreakerStateChange(name string, from, to gobreaker.State) {
	breakerStateTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	recordBreakerState(name, to)
}

func recordBreakerRequest(name string) {
	breakerRequestsTotal.WithLabelValues(name).Inc()
}

func recordBreakerFailure(name string) {
	breakerFailuresTotal.WithLabelValues(name).Inc()
}

func recordBreakerFallback(name string) {
	breakerFallbacksTotal.WithLabelValues(name).Inc()
}

// RecordRetryAttempt counts one attempt of a retried operation
func RecordRetryAttempt(operation string, success bool) {
	retryAttemptsTotal.WithLabelValues(operation, resultLabel(success)).Inc()
}

// RecordRetryOperation records the overall duration and attempt count of a
// retried operation
func RecordRetryOperation(operation string, durationSeconds float64, attempts int, success bool) {
	result := resultLabel(success)
	retryOperationDuration.WithLabelValues(operation, result).Observe(durationSeconds)
	retryAttemptsHistogram.WithLabelValues(operation, result).Observe(float64(attempts))
}

// RecordRetryBackoff records one backoff delay
func RecordRetryBackoff(operation string, durationSeconds float64) {
	retryBackoffDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
