package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Derived-image cache metrics
var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "stale"
	)

	CacheDerivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_derivations_total",
			Help: "Total number of thumbnail/compressed pair derivations",
		},
		[]string{"status"}, // "success", "error"
	)

	CacheDerivationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_gallery_image_cache_derivation_duration_seconds",
			Help:    "Time to derive and commit one cache entry",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	CacheSharedDerivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_shared_derivations_total",
			Help: "Callers that waited on a derivation already in flight for the same key",
		},
	)

	CacheEvictionPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_eviction_passes_total",
			Help: "Eviction passes that found the cache over budget",
		},
	)

	CacheEvictedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_evicted_entries_total",
			Help: "Total number of cache entries evicted",
		},
	)

	CacheDeleteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_delete_errors_total",
			Help: "Derived files that could not be deleted",
		},
		[]string{"reason"}, // "evict", "clear", "rollback", "prune"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_image_cache_entries",
			Help: "Number of entries in the cache index",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_image_cache_size_bytes",
			Help: "On-disk size of all derived files referenced by the index",
		},
	)

	CacheIndexWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_image_cache_index_writes_total",
			Help: "Index snapshot writes by status",
		},
		[]string{"status"},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_transcoder_jobs_total",
			Help: "Total number of image transcoding jobs",
		},
		[]string{"backend", "status"},
	)

	TranscoderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_gallery_transcoder_job_duration_seconds",
			Help:    "Image transcoding job duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_transcoder_jobs_in_progress",
			Help: "Number of transcoding jobs currently in progress",
		},
	)
)

// Catalog metrics
var (
	CatalogPhotos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_catalog_photos",
			Help: "Number of photos in the catalog",
		},
	)

	CatalogOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_catalog_operations_total",
			Help: "Catalog mutations by operation and status",
		},
		[]string{"operation", "status"},
	)

	CatalogCacheWarmFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_gallery_catalog_cache_warm_failures_total",
			Help: "Saved photos whose cache pre-warm failed",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_gallery_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_filesystem_operation_errors_total",
			Help: "Filesystem operations that returned an error",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_gallery_filesystem_retry_events_total",
			Help: "Stale file handle retry loop events by outcome",
		},
		[]string{"operation", "volume", "event"},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_gallery_memory_paused",
			Help: "1 while image work is paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_gallery_memory_pauses_total",
			Help: "Times image work was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_gallery_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
