package metrics

import (
	"context"
	"time"

	"atelier/internal/logging"
)

// Stats is the catalog snapshot the collector publishes.
type Stats struct {
	TotalEntries   int
	TotalMounts    int
	TotalFavorites int
	TotalTags      int
}

// StatsProvider supplies catalog counts.
type StatsProvider interface {
	CollectStats(ctx context.Context) (Stats, error)
}

// DBMetricsUpdater refreshes connection pool gauges.
type DBMetricsUpdater interface {
	UpdateDBMetrics()
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the collection loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

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

	stats, err := c.statsProvider.CollectStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	CatalogEntriesTotal.Set(float64(stats.TotalEntries))
	CatalogMountsTotal.Set(float64(stats.TotalMounts))
	CatalogFavoritesTotal.Set(float64(stats.TotalFavorites))
	CatalogTagsTotal.Set(float64(stats.TotalTags))

	if u, ok := c.statsProvider.(DBMetricsUpdater); ok {
		u.UpdateDBMetrics()
	}

	logging.Debug("Metrics collected: entries=%d, mounts=%d, favorites=%d, tags=%d",
		stats.TotalEntries, stats.TotalMounts, stats.TotalFavorites, stats.TotalTags)
}
