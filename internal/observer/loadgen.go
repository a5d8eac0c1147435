package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook load generator metrics (cmd/tester).
var (
	loadgenRequestsAttempted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_loadgen_requests_attempted_total",
			Help: "Webhook deliveries the load generator attempted.",
		},
		[]string{"channel"},
	)
	loadgenRequestsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_hub_loadgen_requests_completed_total",
			Help: "Webhook deliveries by channel and outcome (stored, rejected, error).",
		},
		[]string{"channel", "outcome"},
	)
	loadgenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_hub_loadgen_request_duration_seconds",
			Help:    "Round trip of one webhook delivery.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

func IncLoadgenRequestsAttempted(channel string) {
	if !metricsEnabled {
		return
	}
	loadgenRequestsAttempted.WithLabelValues(labelOrUnknown(channel)).Inc()
}

func IncLoadgenRequestsCompleted(channel, outcome string) {
	if !metricsEnabled {
		return
	}
	loadgenRequestsCompleted.WithLabelValues(labelOrUnknown(channel), outcome).Inc()
}

func ObserveLoadgenRequestDuration(channel string, seconds float64) {
	if !metricsEnabled {
		return
	}
	loadgenRequestDuration.WithLabelValues(labelOrUnknown(channel)).Observe(seconds)
}
