package imagecache

import (
	"math"
	"sort"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/metrics"
)

const (
	bytesPerMB = 1024 * 1024

	// evictFraction of the entries is removed per pass over budget.
	evictFraction = 0.2
)

// diskUsage sums the byte sizes of the entries' derived files. Missing
// files count as zero.
func diskUsage(entries []*Entry) int64 {
	var total int64
	for _, e := range entries {
		if n, ok := filesystem.FileSize(e.ThumbnailURI); ok {
			total += n
		}
		if n, ok := filesystem.FileSize(e.CompressedURI); ok {
			total += n
		}
	}
	return total
}

// evict removes the oldest ceil(20%) of entries when the derived files
// exceed the budget. The entry under keep is never removed.
func (c *Cache) evict(keep string) {
	snapshot := c.snapshot()
	used := diskUsage(snapshot)
	budget := c.Config().MaxCacheSize

	metrics.CacheEntries.Set(float64(len(snapshot)))
	metrics.CacheSizeBytes.Set(float64(used))

	if float64(used)/bytesPerMB <= budget {
		return
	}
	metrics.CacheEvictionPasses.Inc()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].CachedAt != snapshot[j].CachedAt {
			return snapshot[i].CachedAt < snapshot[j].CachedAt
		}
		return snapshot[i].SourceKey < snapshot[j].SourceKey
	})

	n := int(math.Ceil(evictFraction * float64(len(snapshot))))
	victims := make([]*Entry, 0, n)
	for _, e := range snapshot {
		if len(victims) == n {
			break
		}
		if e.SourceKey == keep {
			continue
		}
		victims = append(victims, e)
	}

	removed := 0
	for _, e := range victims {
		c.mu.Lock()
		current, ok := c.entries[e.SourceKey]
		if ok && current == e {
			delete(c.entries, e.SourceKey)
		}
		c.mu.Unlock()
		if !ok || current != e {
			continue
		}

		c.removeFile(e.ThumbnailURI, "evict")
		c.removeFile(e.CompressedURI, "evict")
		removed++
	}

	metrics.CacheEvictedEntries.Add(float64(removed))
	c.log.Info("evicted %d of %d entries (%.2fMB over %.2fMB budget)",
		removed, len(snapshot), float64(used)/bytesPerMB, budget)

	c.persist()
}
