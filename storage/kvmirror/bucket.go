package kvmirror

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/natsclient"
	"github.com/c360/recordcache/storage"
)

// BucketStore adapts a NATS KV bucket to storage.Store.
type BucketStore struct {
	kv *natsclient.KVStore
}

var _ storage.Store = (*BucketStore)(nil)

// NewBucketStore wraps kv.
func NewBucketStore(kv *natsclient.KVStore) *BucketStore {
	return &BucketStore{kv: kv}
}

// OpenBucket opens or creates the named bucket on client.
func OpenBucket(ctx context.Context, client *natsclient.Client, bucket string) (*BucketStore, error) {
	kv, err := client.KeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "merged record mirror",
		History:     1,
	})
	if err != nil {
		return nil, err
	}
	return NewBucketStore(client.NewKVStore(kv)), nil
}

// Put implements storage.Store.
func (b *BucketStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.kv.Put(ctx, key, data)
	return err
}

// Get implements storage.Store.
func (b *BucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
		return nil, errors.WrapInvalid(storage.ErrNotFound, "BucketStore", "Get", "get "+key)
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// List implements storage.Store.
func (b *BucketStore) List(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements storage.Store.
func (b *BucketStore) Delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, key)
}
