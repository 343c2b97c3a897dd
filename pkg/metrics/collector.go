package metrics

import "time"

// StatsSource is implemented by the store and polled periodically to
// refresh gauges that are cheaper to sample on an interval than to update
// on every mutation.
type StatsSource interface {
	FragmentCount() int
	FragmentBucketCount() int
	CollectionCount() int
	WALPendingCount() int
	OnodeCacheSizes() map[string]int
}

// Collector periodically samples a StatsSource into the package gauges.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	FragmentsTotal.Set(float64(c.source.FragmentCount()))
	FragmentBucketsTotal.Set(float64(c.source.FragmentBucketCount()))
	CollectionsTotal.Set(float64(c.source.CollectionCount()))
	WALPending.Set(float64(c.source.WALPendingCount()))

	for collection, size := range c.source.OnodeCacheSizes() {
		OnodeCacheSize.WithLabelValues(collection).Set(float64(size))
	}
}
