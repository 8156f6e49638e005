package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"photo-gallery/internal/logging"
	"photo-gallery/internal/metrics"
)

// Config holds the backpressure thresholds.
type Config struct {
	// LimitBytes is the reference limit; 0 uses GOMEMLIMIT.
	LimitBytes int64
	// HighWaterMark is the usage ratio below which paused work resumes.
	HighWaterMark float64
	// CriticalWaterMark is the usage ratio at which new work pauses.
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultConfig pauses at 85% of the limit and resumes under 70%.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     2 * time.Second,
	}
}

// Monitor samples heap usage and holds back new image work while it is
// critical. A Monitor without a limit never pauses.
type Monitor struct {
	config    Config
	limit     int64
	readAlloc func() uint64

	mu     sync.Mutex
	alloc  uint64
	paused bool
	resume chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor returns a monitor for config. It does nothing until Start.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		resume:    make(chan struct{}),
		stop:      make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Enabled reports whether a limit is known.
func (m *Monitor) Enabled() bool {
	return m.limit > 0
}

// Start begins periodic sampling. It is a no-op without a limit.
func (m *Monitor) Start() {
	if !m.Enabled() {
		logging.Warn("Memory monitor: no memory limit configured, backpressure disabled")
		return
	}
	logging.Info("Memory monitor started (limit %s)", formatBytes(m.limit))
	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases any waiters.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) check() {
	alloc := m.readAlloc()
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alloc = alloc

	switch {
	case !m.paused && usage >= m.config.CriticalWaterMark:
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		logging.Warn("Memory critical (%.1f%% of limit), pausing image work", usage*100)
		go runtime.GC()
	case m.paused && usage < m.config.HighWaterMark:
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
		logging.Info("Memory recovered (%.1f%% of limit), resuming image work", usage*100)
	}
}

// Wait blocks while usage is critical. It returns ctx's error if ctx ends
// first, and nil once work may proceed or the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-m.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether new work is currently held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	if !m.Enabled() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.alloc) / float64(m.limit)
}
