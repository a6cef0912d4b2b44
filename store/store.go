// Package store holds normalized values keyed by cache key. A slot holds either
// a value or a recorded error such as a prior 404.
package store

import (
	"time"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/pkg/cache"
)

// ErrorEntry is a recorded failure stored in place of a value.
type ErrorEntry struct {
	Status   int       `json:"status"`
	Message  string    `json:"message"`
	StoredAt time.Time `json:"stored_at"`
}

// Expired reports whether the entry is older than ttl. A non-positive ttl never expires.
func (e *ErrorEntry) Expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(e.StoredAt) >= ttl
}

// Slot is the content of one cache key.
type Slot[V any] struct {
	Value V
	Error *ErrorEntry
}

// IsError reports whether the slot holds a recorded error.
func (s Slot[V]) IsError() bool {
	return s.Error != nil
}

// Store is a thread-safe map of cache keys to slots.
type Store[V any] struct {
	name  string
	slots cache.Cache[Slot[V]]
	now   func() time.Time
}

// New creates a store backed by a cache built from cfg.
func New[V any](name string, cfg cache.Config, opts ...cache.Option[Slot[V]]) (*Store[V], error) {
	slots, err := cache.NewFromConfig[Slot[V]](cfg, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "store", "New", "create "+name+" cache")
	}
	return &Store[V]{name: name, slots: slots, now: time.Now}, nil
}

// Name returns the store name used in logs and metrics.
func (s *Store[V]) Name() string {
	return s.name
}

// Get returns the slot stored at key.
func (s *Store[V]) Get(key string) (Slot[V], bool) {
	return s.slots.Get(key)
}

// Put stores value at key, replacing whatever the slot held.
func (s *Store[V]) Put(key string, value V) error {
	_, err := s.slots.Set(key, Slot[V]{Value: value})
	return err
}

// PutError records a failure at key.
func (s *Store[V]) PutError(key string, status int, message string) error {
	_, err := s.slots.Set(key, Slot[V]{Error: &ErrorEntry{
		Status:   status,
		Message:  message,
		StoredAt: s.now(),
	}})
	return err
}

// Evict removes key. Returns true if the key existed.
func (s *Store[V]) Evict(key string) bool {
	ok, _ := s.slots.Delete(key)
	return ok
}

// Clear removes every slot.
func (s *Store[V]) Clear() error {
	return s.slots.Clear()
}

// Keys returns every stored key in no particular order.
func (s *Store[V]) Keys() []string {
	return s.slots.Keys()
}

// Len returns the number of slots.
func (s *Store[V]) Len() int {
	return s.slots.Size()
}

// Stats returns the backing cache statistics, nil when caching is disabled.
func (s *Store[V]) Stats() *cache.Statistics {
	return s.slots.Stats()
}
