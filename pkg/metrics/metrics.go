package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_evictions_total",
		Help: "Total number of tiles evicted to stay under the byte quota",
	})

	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tile_cache_bytes",
		Help: "Current total size of cached tiles in bytes",
	})

	UpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_upstream_requests_total",
		Help: "Total number of upstream tile provider requests",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	PrefetchDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_prefetch_downloaded_total",
		Help: "Total number of tiles downloaded by prefetch runs",
	})

	PrefetchSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_prefetch_skipped_total",
		Help: "Total number of tiles skipped by prefetch runs",
	})

	PrefetchFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_prefetch_failed_total",
		Help: "Total number of tiles failed by prefetch runs",
	})

	OverzoomSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_overzoom_synthesized_total",
		Help: "Total number of tiles synthesized from a coarser cached ancestor",
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
