// Package bridge maps human-entered names (or ids) to durable ids so a
// name-based lookup can go straight to the id-keyed store.
package bridge

import (
	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/cache"
)

// Cache is a name-or-id to id map. Keys match exactly. Entries never expire;
// they are removed explicitly when a lookup by that identifier fails.
type Cache struct {
	name    string
	entries cache.Cache[string]
}

// New creates a bridging cache. A non-nil registry exports hit and miss counters
// labelled with name.
func New(name string, registry metric.MetricsRegistrar) (*Cache, error) {
	var opts []cache.Option[string]
	if registry != nil {
		opts = append(opts, cache.WithMetrics[string](registry, "bridge_"+name))
	}
	entries, err := cache.NewSimple[string](opts...)
	if err != nil {
		return nil, errors.Wrap(err, "bridge", "New", "create "+name)
	}
	return &Cache{name: name, entries: entries}, nil
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Get returns the id previously associated with nameOrID.
func (c *Cache) Get(nameOrID string) (string, bool) {
	if nameOrID == "" {
		return "", false
	}
	return c.entries.Get(nameOrID)
}

// Set associates nameOrID with id. Empty arguments are ignored.
func (c *Cache) Set(nameOrID, id string) {
	if nameOrID == "" || id == "" {
		return
	}
	_, _ = c.entries.Set(nameOrID, id)
}

// Remove drops the entry for nameOrID.
func (c *Cache) Remove(nameOrID string) {
	if nameOrID == "" {
		return
	}
	_, _ = c.entries.Delete(nameOrID)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	_ = c.entries.Clear()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Stats returns hit and miss statistics.
func (c *Cache) Stats() *cache.Statistics {
	return c.entries.Stats()
}
