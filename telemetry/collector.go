package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CounterSource exposes the global forum counters for gauge collection.
type CounterSource interface {
	CounterValue(name string) (int64, error)
}

// MetricsCollector periodically reads the global topic/post counters and
// updates the size gauges.
type MetricsCollector struct {
	source   CounterSource
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(source CounterSource, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if topics, err := mc.source.CounterValue("topicCount"); err == nil {
		TopicCount.Set(float64(topics))
	} else {
		log.Debug().Err(err).Msg("Failed to read topic counter")
	}
	if posts, err := mc.source.CounterValue("postCount"); err == nil {
		PostCount.Set(float64(posts))
	} else {
		log.Debug().Err(err).Msg("Failed to read post counter")
	}
}
