package imagecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/logging"
	"photo-gallery/internal/metrics"
	"photo-gallery/internal/transcoder"

	"golang.org/x/sync/singleflight"
)

// Layout of the data directory owned by the cache.
const (
	ThumbnailsDir = "thumbnails"
	CompressedDir = "compressed"
	IndexFile     = "image_cache.json"
	// LockFile is held by the one process allowed to modify the directory.
	LockFile = ".lock"
	// StagingDir receives transcoder output before it is moved into place.
	StagingDir = ".staging"
)

const (
	// ThumbnailQuality is the fixed encode quality of thumbnails.
	ThumbnailQuality = 0.7
	// CompressedMaxDimension bounds both sides of the compressed variant.
	CompressedMaxDimension = 1200
)

var (
	// ErrEmptySource is returned for an empty source URI.
	ErrEmptySource = errors.New("empty source uri")
	// ErrReadOnly is returned by operations that would modify a cache
	// opened with Options.ReadOnly.
	ErrReadOnly = errors.New("image cache is read-only")
	// ErrClosed is returned by operations that would modify a closed cache.
	ErrClosed = errors.New("image cache is closed")
)

// Entry describes one cached source image and its two derived files.
type Entry struct {
	SourceKey     string `json:"-"`
	SourceURI     string `json:"originalUri"`
	ThumbnailURI  string `json:"thumbnailUri"`
	CompressedURI string `json:"compressedUri"`
	// LogicalSize is width*height of the compressed variant, not a byte count.
	LogicalSize int64 `json:"size"`
	// CachedAt is the creation time in Unix milliseconds. It orders eviction
	// and names the derived files.
	CachedAt int64 `json:"cachedAt"`
}

// Options configures New.
type Options struct {
	// Dir is the data directory holding the cache subdirectories and index.
	Dir        string
	Transcoder transcoder.Transcoder
	// Config defaults to DefaultConfig when zero.
	Config  Config
	KeyMode KeyMode
	// Now defaults to time.Now.
	Now func() time.Time
	// ReadOnly opens the cache without taking the directory lock. Reads and
	// inspection work; anything that would write fails with ErrReadOnly.
	ReadOnly bool
}

// Cache maps source images to a cached thumbnail and compressed variant.
// All methods are safe for concurrent use.
type Cache struct {
	dir     string
	tr      transcoder.Transcoder
	keyMode KeyMode
	now     func() time.Time
	log     *logging.Logger

	readOnly bool
	lock     *filesystem.Lock

	mu        sync.Mutex
	entries   map[string]*Entry
	config    Config
	lastStamp int64
	closed    bool
	running   sync.WaitGroup

	// commitMu is held shared while a derivation moves its files into place
	// and exclusively while orphans are swept.
	commitMu  sync.RWMutex
	persistMu sync.Mutex
	flights   singleflight.Group
}

// New creates a cache rooted at opts.Dir and loads any existing index.
// Unless opts.ReadOnly is set it takes an exclusive lock on the directory
// and fails with an error wrapping filesystem.ErrLocked when another process
// holds it. The lock is released by Close.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("imagecache: data directory is required")
	}
	if opts.Transcoder == nil {
		return nil, errors.New("imagecache: transcoder is required")
	}

	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("imagecache: %w", err)
	}

	mode := opts.KeyMode
	if mode == "" {
		mode = KeyModeSegment
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagecache: create data dir: %w", err)
	}

	c := &Cache{
		dir:      opts.Dir,
		tr:       opts.Transcoder,
		keyMode:  mode,
		now:      now,
		log:      logging.For("imagecache"),
		readOnly: opts.ReadOnly,
		entries:  make(map[string]*Entry),
		config:   cfg,
	}
	if !opts.ReadOnly {
		lock, err := filesystem.TryLock(filepath.Join(opts.Dir, LockFile))
		if err != nil {
			return nil, fmt.Errorf("imagecache: %w", err)
		}
		c.lock = lock
	}
	c.load()
	return c, nil
}

// Close stops new modifications, waits for running ones to finish and releases
// the directory lock. If ctx ends first the lock is kept and ctx's error is
// returned. Reads keep working after Close.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("imagecache: waiting for derivations: %w", ctx.Err())
	}
	return c.lock.Unlock()
}

// writable reports why the cache may not be modified, if it may not.
func (c *Cache) writable() error {
	if c.readOnly {
		return ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// begin registers a modifying operation so Close can wait for it. Callers
// must call c.running.Done when begin succeeds.
func (c *Cache) begin() error {
	if c.readOnly {
		return ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.running.Add(1)
	return nil
}

// Dir returns the data directory.
func (c *Cache) Dir() string { return c.dir }

// KeyMode returns the key derivation in use.
func (c *Cache) KeyMode() KeyMode { return c.keyMode }

// Config returns a copy of the live configuration.
func (c *Cache) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// SetConfig merges patch into the live configuration. Only derivations that
// start afterwards see the change.
func (c *Cache) SetConfig(patch ConfigPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := patch.apply(c.config)
	if err := next.Validate(); err != nil {
		return err
	}
	c.config = next
	c.log.Info("config updated: thumbnail=%dx%d quality=%.2f max=%.1fMB",
		next.ThumbnailSize.Width, next.ThumbnailSize.Height, next.CompressionQuality, next.MaxCacheSize)
	return nil
}

// GetCachedImage returns the entry for sourceURI if both derived files are
// still on disk. An entry with a missing file is dropped from the index;
// the drop is persisted by the next write.
func (c *Cache) GetCachedImage(ctx context.Context, sourceURI string) (*Entry, bool) {
	if sourceURI == "" {
		return nil, false
	}
	key := DeriveKey(c.keyMode, sourceURI)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	if !filesystem.Exists(e.ThumbnailURI) || !filesystem.Exists(e.CompressedURI) {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
		c.log.Debug("dropping stale entry %s: derived file missing", key)
		return nil, false
	}

	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	cp := *e
	return &cp, true
}

// CacheImage returns the valid entry for sourceURI, deriving and storing a
// new one when there is none. Concurrent calls for the same key share one
// derivation. If ctx ends first the caller stops waiting but the shared
// derivation still completes, and Close waits for it.
func (c *Cache) CacheImage(ctx context.Context, sourceURI string) (*Entry, error) {
	if sourceURI == "" {
		return nil, ErrEmptySource
	}
	if e, ok := c.GetCachedImage(ctx, sourceURI); ok {
		return e, nil
	}
	if err := c.writable(); err != nil {
		return nil, err
	}

	key := DeriveKey(c.keyMode, sourceURI)
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		if err := c.begin(); err != nil {
			return nil, err
		}
		defer c.running.Done()
		return c.derive(context.WithoutCancel(ctx), key, sourceURI)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheSharedDerivations.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*Entry)
		return &cp, nil
	}
}

// GetThumbnailURI returns the thumbnail path for sourceURI, caching it first
// if needed.
func (c *Cache) GetThumbnailURI(ctx context.Context, sourceURI string) (string, error) {
	e, err := c.CacheImage(ctx, sourceURI)
	if err != nil {
		return "", err
	}
	return e.ThumbnailURI, nil
}

// GetCompressedURI returns the compressed variant path for sourceURI,
// caching it first if needed.
func (c *Cache) GetCompressedURI(ctx context.Context, sourceURI string) (string, error) {
	e, err := c.CacheImage(ctx, sourceURI)
	if err != nil {
		return "", err
	}
	return e.CompressedURI, nil
}

func (c *Cache) derive(ctx context.Context, key, sourceURI string) (*Entry, error) {
	// A flight for this key may have finished between our miss and DoChan.
	if e, ok := c.GetCachedImage(ctx, sourceURI); ok {
		return e, nil
	}

	start := time.Now()
	entry, err := c.build(ctx, key, sourceURI)
	metrics.CacheDerivationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CacheDerivationsTotal.WithLabelValues("error").Inc()
		c.log.Warn("failed to cache %s: %v", sourceURI, err)
		return nil, err
	}
	metrics.CacheDerivationsTotal.WithLabelValues("success").Inc()

	c.persist()
	c.evict(key)
	return entry, nil
}

// build transcodes both variants into staging, moves them into place and
// inserts the entry. Nothing is left behind on failure.
func (c *Cache) build(ctx context.Context, key, sourceURI string) (*Entry, error) {
	cfg := c.Config()

	thumbDir := filepath.Join(c.dir, ThumbnailsDir)
	compDir := filepath.Join(c.dir, CompressedDir)
	for _, d := range []string{thumbDir, compDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}

	thumb, err := c.tr.Transcode(ctx, sourceURI,
		transcoder.Resize{Width: cfg.ThumbnailSize.Width, Height: cfg.ThumbnailSize.Height, Mode: transcoder.ModeFill},
		transcoder.Options{Quality: ThumbnailQuality, Format: transcoder.FormatJPEG})
	if err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}

	comp, err := c.tr.Transcode(ctx, sourceURI,
		transcoder.Resize{Width: CompressedMaxDimension, Height: CompressedMaxDimension, Mode: transcoder.ModeFit},
		transcoder.Options{Quality: cfg.CompressionQuality, Format: transcoder.FormatJPEG})
	if err != nil {
		c.removeFile(thumb.URI, "rollback")
		return nil, fmt.Errorf("compressed: %w", err)
	}

	c.commitMu.RLock()
	defer c.commitMu.RUnlock()

	stamp := c.nextStamp()
	thumbPath := filepath.Join(thumbDir, fmt.Sprintf("thumb_%d.jpg", stamp))
	compPath := filepath.Join(compDir, fmt.Sprintf("comp_%d.jpg", stamp))

	retry := filesystem.DefaultRetryConfig()
	if err := filesystem.RenameWithRetry(thumb.URI, thumbPath, retry); err != nil {
		c.removeFile(thumb.URI, "rollback")
		c.removeFile(comp.URI, "rollback")
		return nil, fmt.Errorf("move thumbnail: %w", err)
	}
	if err := filesystem.RenameWithRetry(comp.URI, compPath, retry); err != nil {
		c.removeFile(thumbPath, "rollback")
		c.removeFile(comp.URI, "rollback")
		return nil, fmt.Errorf("move compressed: %w", err)
	}

	entry := &Entry{
		SourceKey:     key,
		SourceURI:     sourceURI,
		ThumbnailURI:  thumbPath,
		CompressedURI: compPath,
		LogicalSize:   int64(comp.Width) * int64(comp.Height),
		CachedAt:      stamp,
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.log.Debug("cached %s as %s (%dx%d)", sourceURI, key, comp.Width, comp.Height)
	return entry, nil
}

// nextStamp returns the current Unix millisecond time, bumped so that it is
// strictly greater than any stamp handed out or loaded before.
func (c *Cache) nextStamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if ts <= c.lastStamp {
		ts = c.lastStamp + 1
	}
	c.lastStamp = ts
	return ts
}

// ClearCache deletes every derived file, empties the index and removes the
// snapshot. Individual delete failures are logged and skipped; the only
// errors are ErrReadOnly and ErrClosed.
func (c *Cache) ClearCache(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.running.Done()

	c.mu.Lock()
	victims := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	for _, e := range victims {
		c.removeFile(e.ThumbnailURI, "clear")
		c.removeFile(e.CompressedURI, "clear")
	}

	c.persistMu.Lock()
	c.removeFile(c.indexPath(), "clear")
	c.persistMu.Unlock()

	metrics.CacheEntries.Set(0)
	metrics.CacheSizeBytes.Set(0)
	c.log.Info("cache cleared (%d entries)", len(victims))
	return nil
}

// Stats summarises the index.
type Stats struct {
	Count int `json:"count"`
	// SizeBytes is the on-disk size of all derived files.
	SizeBytes int64   `json:"sizeBytes"`
	SizeMB    float64 `json:"sizeMB"`
	// LogicalSize is the sum of the entries' pixel counts.
	LogicalSize int64 `json:"logicalSize"`
}

// Stats returns the entry count and the on-disk size of the derived files.
func (c *Cache) Stats(ctx context.Context) Stats {
	snapshot := c.snapshot()

	s := Stats{Count: len(snapshot)}
	for _, e := range snapshot {
		s.LogicalSize += e.LogicalSize
	}
	s.SizeBytes = diskUsage(snapshot)
	s.SizeMB = float64(s.SizeBytes) / bytesPerMB
	return s
}

func (c *Cache) snapshot() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// removeFile deletes path, ignoring files that are already gone. Failures
// are logged and counted under reason.
func (c *Cache) removeFile(path, reason string) {
	if path == "" {
		return
	}
	err := filesystem.RemoveWithRetry(filesystem.PathFromURI(path), filesystem.DefaultRetryConfig())
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	metrics.CacheDeleteErrors.WithLabelValues(reason).Inc()
	c.log.Warn("failed to delete %s (%s): %v", path, reason, err)
}
