// Package metrics exposes Prometheus instrumentation for the server.
//
// Every Collector owns its registry, so tests can build as many as they like.
// All methods are safe on a nil *Collector, which disables instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the server.
type Collector struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	onlineUsers prometheus.Gauge
	joins       *prometheus.CounterVec
	persisted   prometheus.Counter
	rejected    *prometheus.CounterVec
	deliveries  prometheus.Counter
	purged      prometheus.Counter
	httpReqs    *prometheus.CounterVec
}

// New creates a collector registering metrics under namespace.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Number of open realtime connections",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_online_users",
			Help:      "Number of users with at least one open connection",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_joins_total",
			Help:      "Room join attempts by result",
		}, []string{"result"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Total number of messages persisted",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Messages rejected before persistence, by error kind",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_deliveries_total",
			Help:      "Frames queued to connections for new messages",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_purged_total",
			Help:      "Expired messages deleted by the purge job",
		}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
	}
	c.registry.MustRegister(
		c.connections, c.onlineUsers, c.joins, c.persisted,
		c.rejected, c.deliveries, c.purged, c.httpReqs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectionOpened() {
	if c != nil {
		c.connections.Inc()
	}
}

func (c *Collector) ConnectionClosed() {
	if c != nil {
		c.connections.Dec()
	}
}

func (c *Collector) SetOnlineUsers(n int) {
	if c != nil {
		c.onlineUsers.Set(float64(n))
	}
}

func (c *Collector) JoinAccepted() {
	if c != nil {
		c.joins.WithLabelValues("accepted").Inc()
	}
}

func (c *Collector) JoinDenied() {
	if c != nil {
		c.joins.WithLabelValues("denied").Inc()
	}
}

func (c *Collector) MessagePersisted() {
	if c != nil {
		c.persisted.Inc()
	}
}

func (c *Collector) MessageRejected(kind string) {
	if c != nil {
		c.rejected.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) Delivered(n int) {
	if c != nil && n > 0 {
		c.deliveries.Add(float64(n))
	}
}

func (c *Collector) Purged(n int64) {
	if c != nil && n > 0 {
		c.purged.Add(float64(n))
	}
}

func (c *Collector) HTTPRequest(method, route string, status int) {
	if c != nil {
		c.httpReqs.WithLabelValues(method, route, http.StatusText(status)).Inc()
	}
}
