// Package metrics declares the Prometheus metrics exported by the photo
// gallery service and the small amount of glue that keeps them current.
//
// Metrics are registered at package initialisation with promauto and are
// grouped by subsystem:
//
//   - HTTP: request counts, latency, and in-flight requests
//   - Image cache: lookups by result, derivations, shared in-flight waits,
//     evictions, delete failures, index writes, entry count and byte size
//   - Transcoder: jobs and latency per backend (vips or imaging)
//   - Catalog: photo count, mutations, failed cache pre-warms
//   - Filesystem: per-volume operation latency, errors and NFS retries
//
// The Collector polls a StatsProvider on an interval to refresh gauges that
// are expensive to maintain incrementally (the cache byte size requires a stat
// of every derived file). NewFilesystemObserver adapts the filesystem package's
// Observer interface onto the counters declared here.
//
// Call InitializeMetrics once at startup so every label combination is
// exported from the first scrape.
package metrics
