package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "television"

// Metrics bundles every collector group so callers can wire them with one value.
type Metrics struct {
	HTTP      *HTTPMetrics
	WebSocket *WebSocketMetrics
	Dispatch  *DispatchMetrics
	Groups    *GroupMetrics
	Bindings  *BindingMetrics
	Redis     *RedisMetrics
	Database  *DatabaseMetrics
}

// New creates and registers all collector groups on reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		HTTP:      NewHTTPMetrics(reg),
		WebSocket: NewWebSocketMetrics(reg),
		Dispatch:  NewDispatchMetrics(reg),
		Groups:    NewGroupMetrics(reg),
		Bindings:  NewBindingMetrics(reg),
		Redis:     NewRedisMetrics(reg),
		Database:  NewDatabaseMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
