package handlers

import (
	"sync/atomic"
	"time"

	"photo-gallery/internal/catalog"
	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/startup"
)

// maxUploadBytes caps the size of a photo upload.
const maxUploadBytes = 64 << 20

// Handlers serves the gallery API over a photo catalog and its image cache.
type Handlers struct {
	catalog    *catalog.Catalog
	cache      *imagecache.Cache
	stagingDir string
	startTime  time.Time
	ready      atomic.Bool
}

// New returns handlers for cat and cache. Uploads are staged in the
// configured staging directory.
func New(cat *catalog.Catalog, cache *imagecache.Cache, config *startup.Config) *Handlers {
	return &Handlers{
		catalog:    cat,
		cache:      cache,
		stagingDir: config.StagingDir,
		startTime:  time.Now(),
	}
}

// SetReady marks the service ready (or not) for the readiness probe.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
