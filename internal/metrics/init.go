package metrics

import "photo-gallery/internal/filesystem"

// Volumes are the directory labels the filesystem resolver is configured with.
var Volumes = []string{"data", "thumbnails", "compressed", "photos", "staging", "unknown"}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, result := range []string{"hit", "miss", "stale"} {
		CacheLookupsTotal.WithLabelValues(result)
	}
	for _, status := range []string{"success", "error"} {
		CacheDerivationsTotal.WithLabelValues(status)
		CacheIndexWrites.WithLabelValues(status)
	}
	for _, reason := range []string{"evict", "clear", "rollback", "prune"} {
		CacheDeleteErrors.WithLabelValues(reason)
	}

	for _, backend := range []string{"vips", "imaging"} {
		TranscoderJobsTotal.WithLabelValues(backend, "success")
		TranscoderJobsTotal.WithLabelValues(backend, "error")
		TranscoderJobDuration.WithLabelValues(backend)
	}

	for _, op := range []string{"save", "delete", "update_title"} {
		CatalogOperationsTotal.WithLabelValues(op, "success")
		CatalogOperationsTotal.WithLabelValues(op, "error")
	}

	fsOps := []string{"stat", "open", "rename", "remove", "write"}
	for _, vol := range Volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			for _, ev := range filesystem.RetryEvents {
				FilesystemRetryEvents.WithLabelValues(op, vol, string(ev))
			}
		}
	}
}
