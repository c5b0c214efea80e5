package blackboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observability channel for failures that never reach the caller:
// degraded backend calls, failed flushes, snapshot trouble.
var (
	metricCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackboard_cache_hits_total",
		Help: "Lookups served by the in-memory tier.",
	})
	metricCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackboard_cache_misses_total",
		Help: "Lookups that fell through to the durable backend.",
	})
	metricBackendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackboard_backend_errors_total",
		Help: "Durable backend calls that failed and were absorbed.",
	})
	metricFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackboard_batch_flushes_total",
		Help: "Bulk write flushes by outcome.",
	}, []string{"status"})
	metricSnapshotSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackboard_snapshot_saves_total",
		Help: "Snapshot files written.",
	})
	metricSnapshotReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackboard_snapshot_reloads_total",
		Help: "Watcher-triggered reloads of an externally changed snapshot.",
	})
	metricSnapshotCorrupt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackboard_snapshot_corrupt_total",
		Help: "Snapshot loads that found an unparseable file.",
	})
)
