package metrics

import (
	"time"

	"imgview/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() Stats

// GetStats calls f.
func (f StatsProviderFunc) GetStats() Stats {
	return f()
}

// Stats holds the sampled values the Collector publishes.
type Stats struct {
	Entries       int
	FullResident  int
	ThumbResident int
	Errors        int
	StoreRows     int64
	StoreBytes    int64
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
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

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
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

	stats := c.statsProvider.GetStats()

	CollectionEntries.Set(float64(stats.Entries))
	FullImagesResident.Set(float64(stats.FullResident))
	ThumbnailsResident.Set(float64(stats.ThumbResident))
	EntriesWithError.Set(float64(stats.Errors))
	ThumbnailStoreRows.Set(float64(stats.StoreRows))
	ThumbnailStoreBytes.Set(float64(stats.StoreBytes))

	logging.Debug("Metrics collected: entries=%d, full=%d, thumbs=%d, errors=%d, store rows=%d",
		stats.Entries, stats.FullResident, stats.ThumbResident, stats.Errors, stats.StoreRows)
}
