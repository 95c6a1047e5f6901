package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dispatch outcomes used as label values.
const (
	OutcomeOK           = "ok"
	OutcomeDecodeError  = "decode_error"
	OutcomeNotFound     = "not_found"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBackendError = "backend_error"
)

// DispatchMetrics holds Prometheus metrics for inbound request handling.
type DispatchMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewDispatchMetrics creates and registers dispatch metrics on the given registry.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total number of dispatched requests, by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Duration from decode to reply, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "in_flight_requests",
			Help:      "Number of handlers currently running.",
		}),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.InFlight)
	return m
}
