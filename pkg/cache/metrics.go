package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/recordcache/metric"
)

// cacheMetrics holds Prometheus metrics for one cache instance.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCounter(prefix, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "recordcache",
		Subsystem:   "cache",
		Name:        name,
		ConstLabels: prometheus.Labels{"cache": prefix},
		Help:        help,
	})
}

// newCacheMetrics creates and registers cache metrics with the provided registry.
func newCacheMetrics(registry metric.MetricsRegistrar, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits:      newCounter(prefix, "hits_total", "Total number of cache hits"),
		misses:    newCounter(prefix, "misses_total", "Total number of cache misses"),
		sets:      newCounter(prefix, "sets_total", "Total number of cache set operations"),
		deletes:   newCounter(prefix, "deletes_total", "Total number of cache delete operations"),
		evictions: newCounter(prefix, "evictions_total", "Total number of cache evictions"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "recordcache",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"cache": prefix},
			Help:        "Current number of entries in cache",
		}),
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"cache_hits", m.hits},
		{"cache_misses", m.misses},
		{"cache_sets", m.sets},
		{"cache_deletes", m.deletes},
		{"cache_evictions", m.evictions},
	}
	for _, c := range counters {
		if err := registry.Register(prefix, c.name, c.c); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(prefix, "cache_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}
