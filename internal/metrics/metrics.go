// Package metrics exports flow execution metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Collector records node and request metrics. It satisfies engine.Observer.
type Collector struct {
	registry *prometheus.Registry

	nodes        *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	reqDuration  *prometheus.HistogramVec
	configErrors *prometheus.CounterVec
}

// New creates a Collector on its own registry, with Go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		nodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lowcode_nodes_executed_total",
			Help: "Node executions by controller, node type and outcome.",
		}, []string{"controller", "type", "output"}),
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lowcode_node_duration_seconds",
			Help:    "Node handler execution time.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"controller", "type"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lowcode_requests_total",
			Help: "Flow requests by controller and HTTP status.",
		}, []string{"controller", "status"}),
		reqDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lowcode_request_duration_seconds",
			Help:    "End-to-end flow execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"controller"}),
		configErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lowcode_configuration_errors_total",
			Help: "Node types that could not be resolved to a handler.",
		}, []string{"controller", "type"}),
	}
}

// NodeExecuted records one node. Failed nodes are counted with output "failed";
// unresolved types are counted separately and have no duration.
func (c *Collector) NodeExecuted(controller, nodeType string, output schema.OutputKey, d time.Duration, err error) {
	if err != nil && schema.IsConfigurationError(err) {
		c.configErrors.WithLabelValues(controller, nodeType).Inc()
		return
	}
	label := string(output)
	switch {
	case err != nil:
		label = "failed"
	case label == "":
		label = "none"
	}
	c.nodes.WithLabelValues(controller, nodeType, label).Inc()
	c.nodeDuration.WithLabelValues(controller, nodeType).Observe(d.Seconds())
}

func (c *Collector) RequestCompleted(controller string, status int, d time.Duration) {
	c.requests.WithLabelValues(controller, strconv.Itoa(status)).Inc()
	c.reqDuration.WithLabelValues(controller).Observe(d.Seconds())
}

// TrackGauge exports the value returned by fn, read at scrape time.
func (c *Collector) TrackGauge(name, help string, fn func() float64) {
	promauto.With(c.registry).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
