package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocm_gateway_requests_total",
			Help: "Backend gateway requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocm_gateway_request_duration_seconds",
			Help:    "Backend gateway request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocm_case_transitions_total",
			Help: "Case lifecycle transitions attempted by target status and outcome.",
		},
		[]string{"to_status", "outcome"},
	)
)

// Register adds the collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(gatewayRequestsTotal, gatewayRequestDuration, transitionsTotal)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGatewayRequest records one finished gateway call.
func ObserveGatewayRequest(operation, outcome string, seconds float64) {
	gatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	gatewayRequestDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveTransition records one lifecycle transition attempt.
func ObserveTransition(toStatus, outcome string) {
	transitionsTotal.WithLabelValues(toStatus, outcome).Inc()
}
