// Package cache provides the generic, thread-safe caches that back the record
// store and the name-to-id bridging caches.
//
// Two strategies exist:
//   - simple: no eviction; entries live until deleted or cleared
//   - lru: least recently used entries are evicted once MaxSize is exceeded
//
// Every cache collects Statistics. Prometheus export is opt-in:
//
//	c, err := cache.NewLRU[*record.Record](5000,
//		cache.WithMetrics[*record.Record](registry, "records"),
//		cache.WithEvictionCallback[*record.Record](func(key string, _ *record.Record) {
//			logger.Debug("evicted", "key", key)
//		}),
//	)
//
// Eviction callbacks run after the cache lock is released, so they may call
// back into the cache.
//
// A Config with Enabled=false produces a noop cache that always misses.
package cache
