package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"imgview/internal/logging"
	"imgview/internal/metrics"
)

// Config holds memory monitor configuration
type Config struct {
	// LimitBytes is the budget to measure against. 0 uses GOMEMLIMIT; with
	// neither set the monitor never throttles.
	LimitBytes int64

	// HighWaterMark is the fraction of the limit at which prefetch stops.
	HighWaterMark float64

	// LowWaterMark is the fraction below which prefetch resumes.
	LowWaterMark float64

	CheckInterval time.Duration
}

// DefaultConfig returns the defaults used by the viewer.
func DefaultConfig() Config {
	return Config{
		HighWaterMark: 0.80,
		LowWaterMark:  0.65,
		CheckInterval: 2 * time.Second,
	}
}

// Monitor samples heap usage and reports whether prefetch should pause.
// It switches on at the high water mark and off below the low water mark so
// the scheduler does not flap around a single threshold.
type Monitor struct {
	config Config
	limit  int64

	// readAlloc is swapped in tests.
	readAlloc func() uint64

	mu        sync.RWMutex
	current   uint64
	throttled bool
}

// NewMonitor creates a monitor. Call Start to begin sampling.
func NewMonitor(config Config) *Monitor {
	if config.LowWaterMark <= 0 || config.LowWaterMark > config.HighWaterMark {
		config.LowWaterMark = config.HighWaterMark
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	limit := config.LimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(limit))
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured, prefetch throttling disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start samples memory every CheckInterval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.limit == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()

		m.checkMemory()
		for {
			select {
			case <-ticker.C:
				m.checkMemory()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) checkMemory() {
	alloc := m.readAlloc()

	m.mu.Lock()
	m.current = alloc
	usage := float64(alloc) / float64(m.limit)
	changed := false

	switch {
	case !m.throttled && usage >= m.config.HighWaterMark:
		m.throttled = true
		changed = true
	case m.throttled && usage < m.config.LowWaterMark:
		m.throttled = false
		changed = true
	}
	throttled := m.throttled
	m.mu.Unlock()

	metrics.MemoryUsageRatio.Set(usage)

	if !changed {
		return
	}
	if throttled {
		logging.Warn("Memory high (%.1f%% of %s), pausing prefetch", usage*100, formatBytes(m.limit))
		metrics.MemoryThrottled.Set(1)
		go runtime.GC()
	} else {
		logging.Info("Memory recovered (%.1f%% of %s), resuming prefetch", usage*100, formatBytes(m.limit))
		metrics.MemoryThrottled.Set(0)
	}
}

// ShouldThrottle reports whether neighbour prefetch should be suppressed.
func (m *Monitor) ShouldThrottle() bool {
	if m.limit == 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.throttled
}

// GetStats returns the last sampled heap size, the limit and their ratio.
func (m *Monitor) GetStats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	currentInt64 := int64(math.MaxInt64)
	if m.current <= math.MaxInt64 {
		currentInt64 = int64(m.current)
	}
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return currentInt64, m.limit, usage
}
