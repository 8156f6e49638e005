package imagecache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/metrics"
)

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, IndexFile)
}

// load reads the index snapshot. Entries whose files are gone are dropped.
// A snapshot that does not parse is moved aside and the cache starts empty.
func (c *Cache) load() {
	path := c.indexPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("failed to read index %s: %v", path, err)
		}
		return
	}

	var raw map[string]*Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		if c.readOnly {
			c.log.Warn("index %s is corrupt (%v), starting empty", path, err)
			return
		}
		aside := path + ".corrupt"
		c.log.Warn("index %s is corrupt (%v), moving it to %s and starting empty", path, err, aside)
		if err := filesystem.RenameWithRetry(path, aside, filesystem.DefaultRetryConfig()); err != nil {
			c.log.Error("failed to move corrupt index aside: %v", err)
		}
		return
	}

	dropped := 0
	for key, e := range raw {
		if e == nil {
			continue
		}
		// Dropped entries may leave files behind; their stamps stay taken.
		if e.CachedAt > c.lastStamp {
			c.lastStamp = e.CachedAt
		}
		if !filesystem.Exists(e.ThumbnailURI) || !filesystem.Exists(e.CompressedURI) {
			dropped++
			continue
		}
		e.SourceKey = key
		c.entries[key] = e
	}

	c.log.Info("loaded %d cache entries from %s (%d stale dropped)", len(c.entries), path, dropped)
}

// persist writes the whole index atomically. Failures are logged; the
// in-memory index stays authoritative.
func (c *Cache) persist() {
	if c.readOnly {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	doc := make(map[string]Entry, len(c.entries))
	for k, e := range c.entries {
		doc[k] = *e
	}
	c.mu.Unlock()

	data, err := json.Marshal(doc)
	if err == nil {
		err = filesystem.WriteFileAtomic(c.indexPath(), data, 0o644)
	}
	if err != nil {
		metrics.CacheIndexWrites.WithLabelValues("error").Inc()
		c.log.Error("failed to save index: %v", err)
		return
	}
	metrics.CacheIndexWrites.WithLabelValues("success").Inc()
}
