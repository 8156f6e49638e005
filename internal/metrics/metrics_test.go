package metrics

import (
	"errors"
	"testing"

	"photo-gallery/internal/filesystem"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"CacheLookupsTotal", CacheLookupsTotal},
		{"CacheDerivationsTotal", CacheDerivationsTotal},
		{"CacheDerivationDuration", CacheDerivationDuration},
		{"CacheSharedDerivations", CacheSharedDerivations},
		{"CacheEvictionPasses", CacheEvictionPasses},
		{"CacheEvictedEntries", CacheEvictedEntries},
		{"CacheDeleteErrors", CacheDeleteErrors},
		{"CacheEntries", CacheEntries},
		{"CacheSizeBytes", CacheSizeBytes},
		{"CacheIndexWrites", CacheIndexWrites},
		{"TranscoderJobsTotal", TranscoderJobsTotal},
		{"CatalogPhotos", CatalogPhotos},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	// Pre-populated series start at zero and are visible to the collector.
	if n := testutil.CollectAndCount(CacheLookupsTotal); n < 3 {
		t.Errorf("CacheLookupsTotal series = %d, want at least 3", n)
	}
	wantFS := len(Volumes) * 5
	if n := testutil.CollectAndCount(FilesystemOperationErrors); n < wantFS {
		t.Errorf("FilesystemOperationErrors series = %d, want at least %d", n, wantFS)
	}
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	errBefore := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("thumbnails", "remove"))
	obs.ObserveOperation("thumbnails", "remove", 0.001, errors.New("boom"))
	obs.ObserveOperation("thumbnails", "remove", 0.001, nil)
	errAfter := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("thumbnails", "remove"))
	if errAfter-errBefore != 1 {
		t.Errorf("operation errors delta = %v, want 1", errAfter-errBefore)
	}

	for _, tt := range []struct {
		op, volume string
		event      filesystem.RetryEvent
		times      int
	}{
		{"stat", "photos", filesystem.RetryAttempt, 2},
		{"open", "data", filesystem.RetryStale, 1},
	} {
		c := FilesystemRetryEvents.WithLabelValues(tt.op, tt.volume, string(tt.event))
		before := testutil.ToFloat64(c)
		for i := 0; i < tt.times; i++ {
			obs.ObserveRetry(tt.op, tt.volume, tt.event)
		}
		if d := testutil.ToFloat64(c) - before; d != float64(tt.times) {
			t.Errorf("%s/%s/%s delta = %v, want %d", tt.op, tt.volume, tt.event, d, tt.times)
		}
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc", "go1.25")
	if v := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc", "go1.25")); v != 1 {
		t.Errorf("AppInfo = %v, want 1", v)
	}
}
