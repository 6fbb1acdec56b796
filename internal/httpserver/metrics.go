package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds every Prometheus collector the process exposes.
// Named and shaped after the teacher's MetricsRegistry
// (internal/interfaces/http/metrics.go), scoped down to the tickstore
// pipeline's own counters and gauges instead of scan/regime metrics.
type MetricsRegistry struct {
	TicksProcessed   *prometheus.CounterVec
	BatchesFlushed   prometheus.Counter
	BatchesFailed    prometheus.Counter
	RetryAttempts    prometheus.Counter
	CacheWriteErrors prometheus.Counter

	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	VenueReconnects *prometheus.CounterVec

	DatabaseUp prometheus.Gauge
}

// NewMetricsRegistry constructs and registers every collector against a
// fresh, process-local Prometheus registry.
func NewMetricsRegistry() (*MetricsRegistry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &MetricsRegistry{
		TicksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstore_ticks_processed_total",
				Help: "Total number of ticks processed by the ingest service, by symbol.",
			},
			[]string{"symbol"},
		),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickstore_batches_flushed_total",
			Help: "Total number of tick batches successfully flushed to the store.",
		}),
		BatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickstore_batches_failed_total",
			Help: "Total number of tick batches discarded after exhausting retries.",
		}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickstore_batch_retry_attempts_total",
			Help: "Total number of batch flush retry attempts.",
		}),
		CacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickstore_cache_write_errors_total",
			Help: "Total number of failed cache write-throughs during ingest.",
		}),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickstore_cache_hit_ratio",
			Help: "Current tick cache hit ratio (0.0 to 1.0).",
		}),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstore_cache_hits_total",
				Help: "Total number of cache hits by tier (memory, remote).",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstore_cache_misses_total",
				Help: "Total number of cache misses by tier (memory, remote).",
			},
			[]string{"tier"},
		),
		VenueReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstore_venue_reconnects_total",
				Help: "Total number of venue websocket reconnect attempts, by venue.",
			},
			[]string{"venue"},
		),
		DatabaseUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickstore_database_up",
			Help: "1 if the Postgres connection is enabled and healthy, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		m.TicksProcessed,
		m.BatchesFlushed,
		m.BatchesFailed,
		m.RetryAttempts,
		m.CacheWriteErrors,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.VenueReconnects,
		m.DatabaseUp,
	)

	return m, reg
}

// Handler serves the registry in the Prometheus text exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
