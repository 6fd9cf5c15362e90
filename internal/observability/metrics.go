// Package observability provides Prometheus metrics for the calculator, its
// data sources and the result cache.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "rangescope"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Calculator metrics
	Calculations       *prometheus.CounterVec
	CalculationLatency *prometheus.HistogramVec
	WindowsDegraded    *prometheus.CounterVec

	// Source metrics
	SourceFallbacks *prometheus.CounterVec
	IndexedLag      *prometheus.GaugeVec

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calculator",
			Name:      "calculations_total",
			Help:      "Total number of APR calculations by outcome",
		}, []string{"outcome"}),
		CalculationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calculator",
			Name:      "calculation_duration_seconds",
			Help:      "APR calculation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		WindowsDegraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calculator",
			Name:      "windows_degraded_total",
			Help:      "Total number of fee windows that fell back to zero",
		}, []string{"window"}),

		SourceFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fallbacks_total",
			Help:      "Total number of direct chain reads by chain and reason",
		}, []string{"chain_id", "reason"}),
		IndexedLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "indexed_lag_seconds",
			Help:      "Last observed lag of the indexed source behind wall clock",
		}, []string{"chain_id"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}, []string{"namespace"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}, []string{"namespace"}),
		CacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evicted_total",
			Help:      "Total number of cache entries removed by reason",
		}, []string{"namespace", "reason"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Calculation(outcome string, took time.Duration) {
	m.Calculations.WithLabelValues(outcome).Inc()
	m.CalculationLatency.WithLabelValues(outcome).Observe(took.Seconds())
}

func (m *Metrics) WindowDegraded(window string) {
	m.WindowsDegraded.WithLabelValues(window).Inc()
}

func (m *Metrics) SourceFallback(chainID uint64, reason string) {
	m.SourceFallbacks.WithLabelValues(chainLabel(chainID), reason).Inc()
}

func (m *Metrics) SourceLag(chainID uint64, lag time.Duration) {
	m.IndexedLag.WithLabelValues(chainLabel(chainID)).Set(lag.Seconds())
}

func (m *Metrics) CacheHit(namespace string) {
	m.CacheHits.WithLabelValues(namespace).Inc()
}

func (m *Metrics) CacheMiss(namespace string) {
	m.CacheMisses.WithLabelValues(namespace).Inc()
}

func (m *Metrics) CacheEvicted(namespace, reason string, n int) {
	m.CacheEvictions.WithLabelValues(namespace, reason).Add(float64(n))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(took.Seconds())
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
