package imagecache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/metrics"
)

// StagingGrace is how old a file in the staging directory must be before it
// counts as an orphan. Younger files may belong to a running derivation or
// upload.
const StagingGrace = time.Hour

// EntryReport is an entry together with what is actually on disk for it.
type EntryReport struct {
	Entry
	SourceKey        string `json:"sourceKey"`
	ThumbnailExists  bool   `json:"thumbnailExists"`
	CompressedExists bool   `json:"compressedExists"`
	ThumbnailBytes   int64  `json:"thumbnailBytes"`
	CompressedBytes  int64  `json:"compressedBytes"`
}

// Report is a diagnostic view of the cache directory.
type Report struct {
	Dir                  string        `json:"dir"`
	KeyMode              KeyMode       `json:"keyMode"`
	Config               Config        `json:"config"`
	IndexPresent         bool          `json:"indexPresent"`
	IndexBytes           int64         `json:"indexBytes"`
	ThumbnailsDirPresent bool          `json:"thumbnailsDirPresent"`
	CompressedDirPresent bool          `json:"compressedDirPresent"`
	Entries              []EntryReport `json:"entries"`
	// Orphans are derived files on disk that no entry references, plus
	// staging leftovers older than StagingGrace.
	Orphans     []string `json:"orphans"`
	OrphanBytes int64    `json:"orphanBytes"`
}

// Inspect reports the index, each entry's files, and unreferenced files in
// the cache subdirectories. Entries are ordered oldest first.
func (c *Cache) Inspect(ctx context.Context) (*Report, error) {
	r := &Report{
		Dir:     c.dir,
		KeyMode: c.keyMode,
		Config:  c.Config(),
		Entries: []EntryReport{},
		Orphans: []string{},
	}

	r.IndexBytes, r.IndexPresent = filesystem.FileSize(c.indexPath())
	r.ThumbnailsDirPresent = filesystem.Exists(filepath.Join(c.dir, ThumbnailsDir))
	r.CompressedDirPresent = filesystem.Exists(filepath.Join(c.dir, CompressedDir))

	snapshot := c.snapshot()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].CachedAt < snapshot[j].CachedAt })

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		er := EntryReport{Entry: *e, SourceKey: e.SourceKey}
		er.ThumbnailBytes, er.ThumbnailExists = filesystem.FileSize(e.ThumbnailURI)
		er.CompressedBytes, er.CompressedExists = filesystem.FileSize(e.CompressedURI)
		r.Entries = append(r.Entries, er)
	}

	orphans, err := c.orphans(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	for _, path := range orphans {
		r.Orphans = append(r.Orphans, path)
		if n, ok := filesystem.FileSize(path); ok {
			r.OrphanBytes += n
		}
	}
	return r, nil
}

// PruneResult reports what PruneOrphans removed.
type PruneResult struct {
	Removed int   `json:"removed"`
	Bytes   int64 `json:"bytes"`
	Failed  int   `json:"failed"`
}

// PruneOrphans deletes files in the cache subdirectories that no entry
// references and stale staging leftovers, reclaiming space leaked by failed
// deletes and interrupted derivations.
func (c *Cache) PruneOrphans(ctx context.Context) (PruneResult, error) {
	var res PruneResult
	if err := c.begin(); err != nil {
		return res, err
	}
	defer c.running.Done()

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	orphans, err := c.orphans(ctx, c.snapshot())
	if err != nil {
		return res, err
	}

	for _, path := range orphans {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		size, _ := filesystem.FileSize(path)
		err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			res.Failed++
			metrics.CacheDeleteErrors.WithLabelValues("prune").Inc()
			c.log.Warn("failed to delete orphan %s: %v", path, err)
			continue
		}
		res.Removed++
		res.Bytes += size
	}

	if res.Removed > 0 || res.Failed > 0 {
		c.log.Info("pruned %d orphaned files (%d bytes), %d failed", res.Removed, res.Bytes, res.Failed)
	}
	return res, nil
}

// orphans lists regular files under the cache subdirectories that are not
// referenced by any entry in snapshot, and staging files older than
// StagingGrace.
func (c *Cache) orphans(ctx context.Context, snapshot []*Entry) ([]string, error) {
	referenced := make(map[string]bool, 2*len(snapshot))
	for _, e := range snapshot {
		referenced[filepath.Clean(filesystem.PathFromURI(e.ThumbnailURI))] = true
		referenced[filepath.Clean(filesystem.PathFromURI(e.CompressedURI))] = true
	}

	var out []string
	for _, sub := range []string{ThumbnailsDir, CompressedDir} {
		dir := filepath.Join(c.dir, sub)
		files, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if f.IsDir() {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if !referenced[path] {
				out = append(out, path)
			}
		}
	}

	staged, err := c.staleStaging(ctx)
	if err != nil {
		return nil, err
	}
	out = append(out, staged...)

	sort.Strings(out)
	return out, nil
}

func (c *Cache) staleStaging(ctx context.Context) ([]string, error) {
	dir := filepath.Join(c.dir, StagingDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	cutoff := c.now().Add(-StagingGrace)
	var out []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			out = append(out, filepath.Join(dir, f.Name()))
		}
	}
	return out, nil
}
