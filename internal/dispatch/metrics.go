package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsEvaluatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_requests_evaluated_total",
		Help: "Total number of requests processed by the orchestrator",
	}, []string{"result"})

	tripsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_trips_completed_total",
		Help: "Total number of trips that reached dropoff",
	})

	agentCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_agent_call_duration_seconds",
		Help:    "Wall-clock duration of routing agent calls",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~8s
	}, []string{"operation"})

	fareAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_trip_fare_dollars",
		Help:    "Fare charged per completed trip",
		Buckets: prometheus.LinearBuckets(0, 5, 12), // $0 to $55
	})

	activeTripsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_trips",
		Help: "Trips currently in flight in the vehicle simulator",
	})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_evaluation_duration_seconds",
		Help:    "Wall-clock duration of complete evaluation runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	})
)

func recordRequestOutcome(result string) {
	requestsEvaluatedTotal.WithLabelValues(result).Inc()
}

func recordTripCompleted(fare float64) {
	tripsCompletedTotal.Inc()
	fareAmount.Observe(fare)
}

func recordAgentCall(operation string, seconds float64) {
	agentCallDuration.WithLabelValues(operation).Observe(seconds)
}

func setActiveTrips(count int) {
	activeTripsGauge.Set(float64(count))
}

func recordEvaluationDuration(seconds float64) {
	evaluationDuration.Observe(seconds)
}
