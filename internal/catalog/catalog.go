package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/location"
	"photo-gallery/internal/logging"
	"photo-gallery/internal/metrics"
	"photo-gallery/internal/transcoder"
)

// Layout of the catalog inside the data directory.
const (
	PhotosDir    = "photos"
	MetadataFile = "photo_metadata.json"
	// CorruptSuffix is appended to a metadata file that failed to parse.
	CorruptSuffix = ".corrupt"
)

// Saved copies are bounded to SavedMaxDimension on both sides and encoded
// at SavedQuality.
const (
	SavedMaxDimension = 1920
	SavedQuality      = 0.85
)

// Display formats for Photo.Date and Photo.Time.
const (
	DateLayout = "01/02/2006"
	TimeLayout = "3:04:05 PM"
)

// ErrNotFound is returned when no photo has the requested id.
var ErrNotFound = errors.New("photo not found")

// Photo is the metadata record of a saved photo.
type Photo struct {
	ID        string             `json:"id"`
	URI       string             `json:"uri"`
	Title     string             `json:"title,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Date      string             `json:"date"`
	Time      string             `json:"time"`
	Location  *location.Location `json:"location,omitempty"`
	Size      int64              `json:"size"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
}

// Warmer pre-computes derived images for a new photo.
type Warmer interface {
	CacheImage(ctx context.Context, sourceURI string) (*imagecache.Entry, error)
}

// Options configures New.
type Options struct {
	Dir        string
	Transcoder transcoder.Transcoder
	// Cache is warmed for every saved photo; nil disables warming.
	Cache Warmer
	// Location defaults to location.None.
	Location location.Resolver
	// Now defaults to time.Now; its location is used for Date and Time.
	Now func() time.Time
}

// Catalog is the ordered list of saved photos, newest first, persisted as a
// JSON array.
type Catalog struct {
	dir      string
	tr       transcoder.Transcoder
	cache    Warmer
	resolver location.Resolver
	now      func() time.Time
	log      *logging.Logger

	mu        sync.RWMutex
	photos    []Photo
	lastStamp int64

	persistMu sync.Mutex
}

// New creates a catalog rooted at opts.Dir and loads the stored metadata.
// Metadata that cannot be read is logged and the catalog starts empty.
func New(opts Options) (*Catalog, error) {
	if opts.Dir == "" {
		return nil, errors.New("catalog: data directory is required")
	}
	if opts.Transcoder == nil {
		return nil, errors.New("catalog: transcoder is required")
	}

	c := &Catalog{
		dir:      opts.Dir,
		tr:       opts.Transcoder,
		cache:    opts.Cache,
		resolver: opts.Location,
		now:      opts.Now,
		log:      logging.For("catalog"),
	}
	if c.resolver == nil {
		c.resolver = location.None{}
	}
	if c.now == nil {
		c.now = time.Now
	}

	if err := c.Reload(); err != nil {
		c.log.Error("error loading photos: %v", err)
	}
	return c, nil
}

func (c *Catalog) metadataPath() string {
	return filepath.Join(c.dir, MetadataFile)
}

// Reload replaces the in-memory list with the stored metadata. A missing
// file yields an empty catalog. A file that does not parse is moved to
// CorruptSuffix beside it, the catalog is emptied and the error returned.
func (c *Catalog) Reload() error {
	var photos []Photo
	path := c.metadataPath()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		err = nil
	case err == nil:
		if jerr := json.Unmarshal(data, &photos); jerr != nil {
			photos = nil
			err = fmt.Errorf("parse %s: %w", path, jerr)
			aside := path + CorruptSuffix
			if rerr := filesystem.RenameWithRetry(path, aside, filesystem.DefaultRetryConfig()); rerr != nil {
				c.log.Error("failed to move corrupt metadata aside: %v", rerr)
			} else {
				c.log.Warn("moved corrupt metadata to %s", aside)
			}
		}
	}

	c.mu.Lock()
	c.photos = photos
	for _, p := range photos {
		if p.Timestamp > c.lastStamp {
			c.lastStamp = p.Timestamp
		}
	}
	n := len(c.photos)
	c.mu.Unlock()

	metrics.CatalogPhotos.Set(float64(n))
	if err == nil {
		c.log.Info("loaded %d photos", n)
	}
	return err
}

// persist writes the list atomically.
func (c *Catalog) persist() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	photos := c.photos
	if photos == nil {
		photos = []Photo{}
	}
	data, err := json.Marshal(photos)
	n := len(c.photos)
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	metrics.CatalogPhotos.Set(float64(n))
	return filesystem.WriteFileAtomic(c.metadataPath(), data, 0o644)
}

func (c *Catalog) nextStamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if ts <= c.lastStamp {
		ts = c.lastStamp + 1
	}
	c.lastStamp = ts
	return ts
}

// SavePhoto stores a bounded JPEG copy of sourceURI under photos/, records
// its metadata at the front of the list and warms the image cache for it.
// An empty title defaults to "Photo <date>". Location and cache failures
// never fail the save.
func (c *Catalog) SavePhoto(ctx context.Context, sourceURI, title string) (*Photo, error) {
	photo, err := c.savePhoto(ctx, sourceURI, title)
	status := "success"
	if err != nil {
		status = "error"
		c.log.Error("error saving photo %s: %v", sourceURI, err)
	}
	metrics.CatalogOperationsTotal.WithLabelValues("save", status).Inc()
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if _, err := c.cache.CacheImage(ctx, photo.URI); err != nil {
			metrics.CatalogCacheWarmFailures.Inc()
			c.log.Warn("failed to cache photo %s: %v", photo.URI, err)
		}
	}
	return photo, nil
}

func (c *Catalog) savePhoto(ctx context.Context, sourceURI, title string) (*Photo, error) {
	if sourceURI == "" {
		return nil, imagecache.ErrEmptySource
	}

	photosDir := filepath.Join(c.dir, PhotosDir)
	if err := os.MkdirAll(photosDir, 0o755); err != nil {
		return nil, fmt.Errorf("create photos dir: %w", err)
	}

	loc := c.resolver.Resolve(ctx)
	size, _ := filesystem.FileSize(sourceURI)

	res, err := c.tr.Transcode(ctx, sourceURI,
		transcoder.Resize{Width: SavedMaxDimension, Height: SavedMaxDimension, Mode: transcoder.ModeFit},
		transcoder.Options{Quality: SavedQuality, Format: transcoder.FormatJPEG})
	if err != nil {
		return nil, fmt.Errorf("compress photo: %w", err)
	}

	ts := c.nextStamp()
	dest := filepath.Join(photosDir, fmt.Sprintf("photo_%d.jpg", ts))
	if err := filesystem.RenameWithRetry(res.URI, dest, filesystem.DefaultRetryConfig()); err != nil {
		_ = os.Remove(res.URI)
		return nil, fmt.Errorf("move photo: %w", err)
	}

	taken := time.UnixMilli(ts).In(c.now().Location())
	date := taken.Format(DateLayout)
	if title == "" {
		title = "Photo " + date
	}

	photo := Photo{
		ID:        fmt.Sprintf("photo_%d", ts),
		URI:       dest,
		Title:     title,
		Timestamp: ts,
		Date:      date,
		Time:      taken.Format(TimeLayout),
		Location:  loc,
		Size:      size,
		Width:     res.Width,
		Height:    res.Height,
	}

	c.mu.Lock()
	c.photos = append([]Photo{photo}, c.photos...)
	c.mu.Unlock()

	if err := c.persist(); err != nil {
		c.log.Error("error saving photos: %v", err)
	}
	c.log.Info("saved %s as %s (%dx%d)", sourceURI, photo.ID, photo.Width, photo.Height)
	return &photo, nil
}

// Photos returns a copy of every photo, newest first.
func (c *Catalog) Photos() []Photo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Photo(nil), c.photos...)
}

// Len returns the number of photos.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.photos)
}

// Photo returns the photo with the given id.
func (c *Catalog) Photo(id string) (*Photo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.photos {
		if c.photos[i].ID == id {
			p := c.photos[i]
			return &p, true
		}
	}
	return nil, false
}

// DeletePhoto removes the photo's file and its record. Derived images in
// the cache are left to the cache's own housekeeping.
func (c *Catalog) DeletePhoto(ctx context.Context, id string) error {
	err := c.deletePhoto(id)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.CatalogOperationsTotal.WithLabelValues("delete", status).Inc()
	return err
}

func (c *Catalog) deletePhoto(id string) error {
	p, ok := c.Photo(id)
	if !ok {
		return ErrNotFound
	}

	err := filesystem.RemoveWithRetry(filesystem.PathFromURI(p.URI), filesystem.DefaultRetryConfig())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", p.URI, err)
	}

	c.mu.Lock()
	kept := c.photos[:0:0]
	for _, photo := range c.photos {
		if photo.ID != id {
			kept = append(kept, photo)
		}
	}
	c.photos = kept
	c.mu.Unlock()

	if err := c.persist(); err != nil {
		return fmt.Errorf("save photos: %w", err)
	}
	c.log.Info("deleted %s", id)
	return nil
}

// UpdatePhotoTitle sets the title of the photo with the given id.
func (c *Catalog) UpdatePhotoTitle(ctx context.Context, id, title string) error {
	err := c.updateTitle(id, title)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.CatalogOperationsTotal.WithLabelValues("update_title", status).Inc()
	return err
}

func (c *Catalog) updateTitle(id, title string) error {
	c.mu.Lock()
	found := false
	for i := range c.photos {
		if c.photos[i].ID == id {
			c.photos[i].Title = title
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return ErrNotFound
	}
	if err := c.persist(); err != nil {
		return fmt.Errorf("save photos: %w", err)
	}
	return nil
}
