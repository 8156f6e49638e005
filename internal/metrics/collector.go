package metrics

import (
	"context"
	"sync"
	"time"

	"photo-gallery/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats(ctx context.Context) Stats
}

// Stats holds the current statistics
type Stats struct {
	CacheEntries   int
	CacheSizeBytes int64
	Photos         int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats := c.statsProvider.GetStats(ctx)

	CacheEntries.Set(float64(stats.CacheEntries))
	CacheSizeBytes.Set(float64(stats.CacheSizeBytes))
	CatalogPhotos.Set(float64(stats.Photos))

	logging.Debug("Metrics collected: cache entries=%d, cache bytes=%d, photos=%d",
		stats.CacheEntries, stats.CacheSizeBytes, stats.Photos)
}
