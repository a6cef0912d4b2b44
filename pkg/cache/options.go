package cache

import (
	"github.com/c360/recordcache/metric"
)

// Option configures cache behavior.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg    metric.MetricsRegistrar
	metricsPrefix string
	evictCallback EvictCallback[V]
}

// WithMetrics exports cache statistics as Prometheus metrics labelled with prefix.
// A nil registry or empty prefix leaves metrics disabled.
func WithMetrics[V any](registry metric.MetricsRegistrar, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked when entries leave the cache.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
