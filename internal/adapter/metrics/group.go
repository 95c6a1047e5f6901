package metrics

import "github.com/prometheus/client_golang/prometheus"

// GroupMetrics holds Prometheus metrics for the group directory.
type GroupMetrics struct {
	Groups          prometheus.Gauge
	Memberships     prometheus.Gauge
	BroadcastsTotal prometheus.Counter
	Deliveries      prometheus.Counter
	CommandDepth    prometheus.Gauge
	CommandTimeouts prometheus.Counter
	DirectoryPanics prometheus.Counter
}

// NewGroupMetrics creates and registers group directory metrics on the given registry.
func NewGroupMetrics(reg prometheus.Registerer) *GroupMetrics {
	m := &GroupMetrics{
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "active",
			Help:      "Number of groups with at least one member.",
		}),
		Memberships: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "memberships",
			Help:      "Total number of (group, connection) memberships.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "broadcasts_total",
			Help:      "Total number of group broadcasts delivered locally.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "deliveries_total",
			Help:      "Total number of frames handed to connections by broadcasts.",
		}),
		CommandDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "command_channel_depth",
			Help:      "Pending commands in the directory command channel.",
		}),
		CommandTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "command_timeouts_total",
			Help:      "Total number of directory commands that timed out.",
		}),
		DirectoryPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "directory_panics_total",
			Help:      "Total number of panics recovered in the directory loop.",
		}),
	}

	reg.MustRegister(m.Groups, m.Memberships, m.BroadcastsTotal, m.Deliveries,
		m.CommandDepth, m.CommandTimeouts, m.DirectoryPanics)
	return m
}
