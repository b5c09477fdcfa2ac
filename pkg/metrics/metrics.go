// Package metrics registers the Prometheus collectors C2/C6/C7/C8
// expose, grounded on the prometheus/client_golang usage pattern in
// runZeroInc-sockstats' pkg/exporter and the Voskan-arena-cache
// manifest (both register plain Counter/Gauge/Histogram collectors
// via promauto rather than hand-rolled Collector implementations).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits/CacheMisses count C6 lookups.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_cache_hits_total",
		Help: "Chunk cache lookups that found a resident chunk.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_cache_misses_total",
		Help: "Chunk cache lookups that required a load or generation.",
	})
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_cache_evictions_total",
		Help: "Chunks evicted from the cache to stay under budget.",
	})
	CacheResidentChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibeshitcraft_cache_resident_chunks",
		Help: "Number of chunks currently resident in the cache.",
	})
	CacheCapacityExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_cache_capacity_exhausted_total",
		Help: "Chunk admissions refused because every resident entry was pinned.",
	})

	// GenerationQueueDepth/GenerationLatency instrument C7.
	GenerationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibeshitcraft_generation_queue_depth",
		Help: "Pending chunk generation jobs waiting for a worker.",
	})
	GenerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vibeshitcraft_generation_latency_seconds",
		Help:    "Time spent generating one chunk.",
		Buckets: prometheus.DefBuckets,
	})
	GenerationInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibeshitcraft_generation_in_flight",
		Help: "Chunk generations currently running across all workers.",
	})
	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_generation_failures_total",
		Help: "Chunk generations that returned an error from the Generator.",
	})

	// RegionReads/RegionWrites/RegionQuarantines instrument C8.
	RegionReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_region_reads_total",
		Help: "Chunk blobs read from region files.",
	})
	RegionWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_region_writes_total",
		Help: "Chunk blobs written to region files.",
	})
	RegionQuarantines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_region_quarantines_total",
		Help: "Region files renamed aside after failing to decode.",
	})

	// FramesRead/FramesWritten/ConnectionsActive instrument C2.
	FramesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_frames_read_total",
		Help: "Protocol frames read from client connections.",
	})
	FramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeshitcraft_frames_written_total",
		Help: "Protocol frames written to client connections.",
	})
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibeshitcraft_connections_active",
		Help: "Currently open client connections.",
	})
)
