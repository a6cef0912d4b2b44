package storage

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"

	"github.com/c360/recordcache/errors"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.ErrKeyNotFound

// Store is a byte-oriented key-value backend.
//
// Implementations must be safe for concurrent use. Delete of an absent key
// succeeds.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns an error wrapping ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key in lexicographic order.
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// EncodeKey maps an arbitrary cache key onto the token alphabet accepted by
// NATS KV keys.
func EncodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeKey reverses EncodeKey.
func DecodeKey(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.WrapInvalid(err, "storage", "DecodeKey", "decode "+encoded)
	}
	return string(raw), nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, errors.WrapInvalid(ErrNotFound, "Memory", "Get", "get "+key)
	}
	return append([]byte(nil), data...), nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
