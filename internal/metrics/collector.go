// Package metrics exposes the Prometheus collectors for the pose pipeline.
// All methods are safe on a nil *Collector so components can run without
// metrics in tests and CLIs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posemind"

// Collector owns a private registry and the pipeline metrics.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	illustrations *prometheus.CounterVec
	quotaDenied   prometheus.Counter
}

// NewCollector registers every metric on a fresh registry together with the
// Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"method", "route"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each remote pipeline stage",
			Buckets:   []float64{.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"stage"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Remote calls replaced by a built-in fallback",
		}, []string{"stage", "reason"}),
		illustrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "illustrations_total",
			Help:      "Pose illustration attempts by outcome",
		}, []string{"outcome"}),
		quotaDenied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denied_total",
			Help:      "Requests rejected by the daily usage cap",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) Fallback(stage, reason string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(stage, reason).Inc()
}

func (c *Collector) Illustration(outcome string) {
	if c == nil {
		return
	}
	c.illustrations.WithLabelValues(outcome).Inc()
}

func (c *Collector) QuotaDenied() {
	if c == nil {
		return
	}
	c.quotaDenied.Inc()
}
