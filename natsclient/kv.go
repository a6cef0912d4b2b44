package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/pkg/retry"
)

// ErrKVKeyNotFound is returned by KVStore.Get for absent keys.
var ErrKVKeyNotFound = stderrors.New("kv: key not found")

// KVEntry is a value read from a bucket
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KVStore behavior
type KVOptions struct {
	Timeout      time.Duration // Per-operation timeout
	MaxValueSize int           // Values larger than this are rejected
	Retry        retry.Config  // Applied to Put and Delete
}

// DefaultKVOptions returns a 5s timeout, a 1MB value limit and quick retries
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024,
		Retry:        retry.Quick(),
	}
}

// KVStore wraps a bucket with timeouts, size checks and retries
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore wraps bucket
func (m *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  m.logger.With("bucket", bucket.Bucket()),
	}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Bucket returns the bucket name
func (kv *KVStore) Bucket() string {
	return kv.bucket.Bucket()
}

// Get reads key. Absent keys return ErrKVKeyNotFound.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get", "get "+key)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put writes key unconditionally, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "KVStore", "Put", "value exceeds maximum size")
	}

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := retry.DoWithResult(ctx, kv.options.Retry, func() (uint64, error) {
		return kv.bucket.Put(ctx, key, value)
	})
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put", "put "+key)
	}
	kv.logger.Debug("kv put", "key", key, "revision", rev)
	return rev, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	err := retry.Do(ctx, kv.options.Retry, func() error {
		err := kv.bucket.Delete(ctx, key)
		if IsKVNotFoundError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.WrapTransient(err, "KVStore", "Delete", "delete "+key)
	}
	return nil
}

// Keys lists every live key in the bucket.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "list keys")
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for {
		select {
		case key, ok := <-lister.Keys():
			if !ok {
				return keys, nil
			}
			keys = append(keys, key)
		case <-ctx.Done():
			return keys, errors.WrapTransient(ctx.Err(), "KVStore", "Keys", "list keys")
		}
	}
}

// IsKVNotFoundError reports whether err means the key does not exist
func IsKVNotFoundError(err error) bool {
	return err != nil && (stderrors.Is(err, ErrKVKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyDeleted))
}
