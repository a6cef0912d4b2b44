package cache

import (
	"fmt"

	"github.com/c360/recordcache/errors"
)

// Strategy defines the eviction strategy for the cache.
type Strategy string

const (
	// StrategySimple uses no eviction policy.
	StrategySimple Strategy = "simple"

	// StrategyLRU uses least recently used eviction bounded by MaxSize.
	StrategyLRU Strategy = "lru"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled. A disabled cache never holds entries.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Strategy determines the eviction strategy.
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// MaxSize is the maximum number of entries for LRU caches.
	MaxSize int `json:"max_size" yaml:"max_size"`
}

// DefaultConfig returns an unbounded simple cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Strategy: StrategySimple,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Strategy {
	case StrategySimple:
	case StrategyLRU:
		if c.MaxSize <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
				fmt.Sprintf("max_size must be positive for LRU cache, got %d", c.MaxSize))
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("unknown cache strategy: %q", c.Strategy))
	}
	return nil
}

// NewFromConfig creates a cache based on the provided configuration.
// Returns a noop cache if config.Enabled is false.
func NewFromConfig[V any](config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.Enabled {
		return NewNoop[V](), nil
	}

	switch config.Strategy {
	case StrategyLRU:
		return NewLRU[V](config.MaxSize, options...)
	default:
		return NewSimple[V](options...)
	}
}

// NewLRU creates a new LRU cache with the specified maximum size.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	t, err := newTable(maxSize, applyOptions(options...), "NewLRU")
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewSimple creates a new cache with no eviction policy.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	t, err := newTable(0, applyOptions(options...), "NewSimple")
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewNoop creates a cache that stores nothing and always misses.
func NewNoop[V any]() Cache[V] {
	return noopCache[V]{}
}

type noopCache[V any] struct{}

func (noopCache[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

func (noopCache[V]) Set(string, V) (bool, error) { return false, nil }
func (noopCache[V]) Delete(string) (bool, error) { return false, nil }
func (noopCache[V]) Clear() error                { return nil }
func (noopCache[V]) Size() int                   { return 0 }
func (noopCache[V]) Keys() []string              { return nil }
func (noopCache[V]) Stats() *Statistics          { return nil }
func (noopCache[V]) Close() error                { return nil }
