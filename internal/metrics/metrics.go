// Package metrics exposes store and HTTP metrics on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxviazov/storegate/internal/gateway"
)

const namespace = "storegate"

// Metrics owns the registry and every collector registered on it.
type Metrics struct {
	registry   *prom.Registry
	operations *prom.CounterVec
	latency    *prom.HistogramVec
	requests   *prom.CounterVec
	reqLatency *prom.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prom.NewRegistry(),
		operations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "operations_total",
			Help:      "Store operations by backend, shape and outcome.",
		}, []string{"backend", "shape", "outcome"}),
		latency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of store operations including handle acquisition and release.",
			Buckets:   prom.DefBuckets,
		}, []string{"backend", "shape"}),
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		reqLatency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prom.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations, m.latency, m.requests, m.reqLatency,
	)
	return m
}

// OperationDone implements gateway.Observer.
func (m *Metrics) OperationDone(backend, shape string, outcome gateway.Outcome, took time.Duration) {
	m.operations.WithLabelValues(backend, shape, string(outcome)).Inc()
	m.latency.WithLabelValues(backend, shape).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per matched route. Unmatched
// paths share one label so scanners cannot blow up cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.reqLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var _ gateway.Observer = (*Metrics)(nil)
