// Package metrics exposes the prometheus Collector the server attaches to
// every Connection. Grounded on JeelKantaria-db-bouncer's
// internal/metrics/metrics.go, trading its per-tenant pool gauges for the
// per-connection/per-message-type counters this protocol core can actually
// observe.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the edge protocol frontend.
type Collector struct {
	Registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge

	messagesTotal         *prometheus.CounterVec
	queryCacheHitsTotal   prometheus.Counter
	queryCacheMissesTotal prometheus.Counter
	compilerCallsTotal    *prometheus.CounterVec
	inTxErrorsTotal       prometheus.Counter
	queryDuration         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics using a dedicated
// registry. Safe to call multiple times (e.g. in tests) since each call
// creates an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgewire_connections_active",
			Help: "Number of currently open client connections",
		}),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgewire_messages_total",
				Help: "Total client messages processed, by message type",
			},
			[]string{"type"},
		),
		queryCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgewire_query_cache_hits_total",
			Help: "Total compiled-query cache hits",
		}),
		queryCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgewire_query_cache_misses_total",
			Help: "Total compiled-query cache misses",
		}),
		compilerCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgewire_compiler_calls_total",
				Help: "Total calls made to the query compiler, by operation",
			},
			[]string{"operation"},
		),
		inTxErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgewire_in_tx_errors_total",
			Help: "Total times a connection entered the in-transaction error state",
		}),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgewire_query_duration_seconds",
				Help:    "Duration of query operations, by operation",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		c.ConnectionsActive,
		c.messagesTotal,
		c.queryCacheHitsTotal,
		c.queryCacheMissesTotal,
		c.compilerCallsTotal,
		c.inTxErrorsTotal,
		c.queryDuration,
	)

	return c
}

// MessageReceived increments the per-message-type counter.
func (c *Collector) MessageReceived(typ byte) {
	c.messagesTotal.WithLabelValues(string(typ)).Inc()
}

// QueryCacheHit increments the cache hit counter.
func (c *Collector) QueryCacheHit() {
	c.queryCacheHitsTotal.Inc()
}

// QueryCacheMiss increments the cache miss counter.
func (c *Collector) QueryCacheMiss() {
	c.queryCacheMissesTotal.Inc()
}

// CompilerCall increments the compiler-call counter for the given operation
// (e.g. "parse", "describe-miss", "simple", "legacy", "rollback").
func (c *Collector) CompilerCall(operation string) {
	c.compilerCallsTotal.WithLabelValues(operation).Inc()
}

// InTxError increments the in-transaction-error counter.
func (c *Collector) InTxError() {
	c.inTxErrorsTotal.Inc()
}

// QueryDuration observes how long an operation took.
func (c *Collector) QueryDuration(operation string, d time.Duration) {
	c.queryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Handler returns an HTTP handler that serves this Collector's metrics in
// the Prometheus exposition format, suitable for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
