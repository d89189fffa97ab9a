package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the dispatcher-wide counter set. It replaces the teacher's
// homegrown map[string]any MetricsRegistry with real Prometheus collectors,
// registered on a private registry so a host process can mount Handler()
// on its own /metrics path without colliding with its own collectors.
type Metrics struct {
	registry *prometheus.Registry

	SessionsOpened *prometheus.CounterVec
	SessionsClosed *prometheus.CounterVec
	BytesIn        *prometheus.CounterVec
	BytesOut       *prometheus.CounterVec
	PubEvictions   prometheus.Counter
	RouteErrors    *prometheus.CounterVec
	ActiveSessions *prometheus.GaugeVec
}

// NewMetrics builds a fresh, independently registered metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhttp_sessions_opened_total",
			Help: "Sessions opened, labeled by node kind.",
		}, []string{"kind"}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhttp_sessions_closed_total",
			Help: "Sessions closed, labeled by node kind and reason.",
		}, []string{"kind", "reason"}),
		BytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhttp_bytes_in_total",
			Help: "Bytes received from the wire, labeled by node kind.",
		}, []string{"kind"}),
		BytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhttp_bytes_out_total",
			Help: "Bytes written to the wire, labeled by node kind.",
		}, []string{"kind"}),
		PubEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanhttp_pub_evictions_total",
			Help: "Subscribers closed for falling behind a pub node's ring.",
		}),
		RouteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanhttp_route_errors_total",
			Help: "Requests rejected by the router before reaching a node, labeled by status.",
		}, []string{"status"}),
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chanhttp_active_sessions",
			Help: "Currently live sessions, labeled by node kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.SessionsOpened, m.SessionsClosed, m.BytesIn, m.BytesOut,
		m.PubEvictions, m.RouteErrors, m.ActiveSessions)
	return m
}

// Handler exposes the registry for a host to mount on its own metrics path.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for a host that wants to gather
// families directly instead of going through an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
