package metrics

import "github.com/prometheus/client_golang/prometheus"

// BindingMetrics holds Prometheus metrics for data bindings.
type BindingMetrics struct {
	EventsTotal   *prometheus.CounterVec
	ListsTotal    *prometheus.CounterVec
	ListCoalesced *prometheus.CounterVec
}

// NewBindingMetrics creates and registers binding metrics on the given registry.
func NewBindingMetrics(reg prometheus.Registerer) *BindingMetrics {
	m := &BindingMetrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "events_total",
			Help:      "Total number of entity change events broadcast, by model and action.",
		}, []string{"model", "action"}),
		ListsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "lists_total",
			Help:      "Total number of list queries executed against the store, by model.",
		}, []string{"model"}),
		ListCoalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "lists_coalesced_total",
			Help:      "Total number of list calls answered by an in-flight query, by model.",
		}, []string{"model"}),
	}

	reg.MustRegister(m.EventsTotal, m.ListsTotal, m.ListCoalesced)
	return m
}
