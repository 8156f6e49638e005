package metrics

import "photo-gallery/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver returns a filesystem.Observer that feeds the
// photo_gallery_filesystem_* series.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (filesystemObserver) ObserveRetry(operation, volume string, event filesystem.RetryEvent) {
	FilesystemRetryEvents.WithLabelValues(operation, volume, string(event)).Inc()
}
