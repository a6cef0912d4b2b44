package cache

import (
	"github.com/c360/recordcache/errors"
)

// Cache represents a generic cache keyed by string and parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created, false if updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics, nil for the noop cache.
	Stats() *Statistics

	// Close releases any resources held by the cache.
	Close() error
}

// EvictCallback is called when an entry is removed by Delete, Clear or eviction.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}

// observer fans out cache events to statistics and, when enabled, Prometheus.
type observer struct {
	stats   *Statistics
	metrics *cacheMetrics
}

func newObserver[V any](opts *cacheOptions[V], op string) (observer, error) {
	o := observer{stats: NewStatistics()}
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		m, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return o, errors.WrapTransient(err, "cache", op, "metrics registration")
		}
		o.metrics = m
	}
	return o, nil
}

func (o observer) hit() {
	o.stats.Hit()
	if o.metrics != nil {
		o.metrics.hits.Inc()
	}
}

func (o observer) miss() {
	o.stats.Miss()
	if o.metrics != nil {
		o.metrics.misses.Inc()
	}
}

func (o observer) set(size int) {
	o.stats.Set()
	o.resize(size)
	if o.metrics != nil {
		o.metrics.sets.Inc()
	}
}

func (o observer) deleted(size int) {
	o.stats.Delete()
	o.resize(size)
	if o.metrics != nil {
		o.metrics.deletes.Inc()
	}
}

func (o observer) evicted() {
	o.stats.Eviction()
	if o.metrics != nil {
		o.metrics.evictions.Inc()
	}
}

func (o observer) resize(size int) {
	o.stats.UpdateSize(int64(size))
	if o.metrics != nil {
		o.metrics.size.Set(float64(size))
	}
}
