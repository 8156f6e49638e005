package imagecache

import (
	"fmt"
	"math"
)

// Size is a pixel box.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Config controls future derivations. Existing entries are never rewritten
// when it changes.
type Config struct {
	ThumbnailSize      Size    `json:"thumbnailSize"`
	CompressionQuality float64 `json:"compressionQuality"`
	// MaxCacheSize is the eviction budget in MB for the derived files.
	MaxCacheSize float64 `json:"maxCacheSize"`
}

// DefaultConfig returns the stock configuration: 300x300 thumbnails,
// quality 0.8 for the compressed variant and a 100 MB budget.
func DefaultConfig() Config {
	return Config{
		ThumbnailSize:      Size{Width: 300, Height: 300},
		CompressionQuality: 0.8,
		MaxCacheSize:       100,
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	if c.ThumbnailSize.Width <= 0 || c.ThumbnailSize.Height <= 0 {
		return fmt.Errorf("thumbnail size must be positive, got %dx%d", c.ThumbnailSize.Width, c.ThumbnailSize.Height)
	}
	if math.IsNaN(c.CompressionQuality) || c.CompressionQuality < 0 || c.CompressionQuality > 1 {
		return fmt.Errorf("compression quality must be within 0-1, got %v", c.CompressionQuality)
	}
	if math.IsNaN(c.MaxCacheSize) || c.MaxCacheSize < 0 {
		return fmt.Errorf("max cache size must not be negative, got %v", c.MaxCacheSize)
	}
	return nil
}

// ConfigPatch is a partial Config; nil fields are left unchanged.
type ConfigPatch struct {
	ThumbnailSize      *Size    `json:"thumbnailSize,omitempty"`
	CompressionQuality *float64 `json:"compressionQuality,omitempty"`
	MaxCacheSize       *float64 `json:"maxCacheSize,omitempty"`
}

// apply returns base with the non-nil fields of p merged in.
func (p ConfigPatch) apply(base Config) Config {
	if p.ThumbnailSize != nil {
		base.ThumbnailSize = *p.ThumbnailSize
	}
	if p.CompressionQuality != nil {
		base.CompressionQuality = *p.CompressionQuality
	}
	if p.MaxCacheSize != nil {
		base.MaxCacheSize = *p.MaxCacheSize
	}
	return base
}
