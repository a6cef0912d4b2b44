package kvmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/storage"
)

const oppID = "006xx000001a2b3AAA"

func newTestMirror(t *testing.T, store storage.Store) *Mirror {
	t.Helper()
	m := New(DefaultConfig(), store, metric.NewMetricsRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(time.Second) })
	return m
}

func opportunity() *record.Record {
	return &record.Record{
		APIName: "Opportunity",
		ID:      oppID,
		Version: record.Known(4),
		Fields: map[string]record.FieldValue{
			"Name":    {Value: "Deal"},
			"Amount":  {State: record.Pending},
			"Account": {Link: record.KeyFor(record.KindRecord, "001xx000003DGb2AAG")},
		},
	}
}

func TestMirror_SaveLoadDelete(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestMirror(t, backend)
	key := record.KeyFor(record.KindRecord, oppID)

	m.Save(key, opportunity())
	require.Eventually(t, func() bool { return backend.Len() == 1 }, time.Second, time.Millisecond)

	keys, err := backend.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{storage.EncodeKey(key)}, keys)

	loaded := map[string]*record.Record{}
	require.NoError(t, m.Load(context.Background(), func(k string, r *record.Record) error {
		loaded[k] = r
		return nil
	}))
	require.Contains(t, loaded, key)
	got := loaded[key]
	assert.Equal(t, "Opportunity", got.APIName)
	assert.Equal(t, record.Known(4), got.Version)
	assert.Equal(t, "Deal", got.Fields["Name"].Value)
	assert.Equal(t, record.Pending, got.Fields["Amount"].State)
	assert.Equal(t, record.KeyFor(record.KindRecord, "001xx000003DGb2AAG"), got.Fields["Account"].Link)

	m.Delete(key)
	require.Eventually(t, func() bool { return backend.Len() == 0 }, time.Second, time.Millisecond)
}

func TestMirror_LoadSkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	require.NoError(t, backend.Put(ctx, "%%%", []byte(`{}`)))
	require.NoError(t, backend.Put(ctx, storage.EncodeKey("bad"), []byte(`not json`)))
	m := newTestMirror(t, backend)

	calls := 0
	require.NoError(t, m.Load(ctx, func(string, *record.Record) error {
		calls++
		return nil
	}))
	assert.Zero(t, calls)
}

func TestMirror_LoadStopsOnCallbackError(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestMirror(t, backend)
	m.Save("a", opportunity())
	m.Save("b", opportunity())
	require.Eventually(t, func() bool { return backend.Len() == 2 }, time.Second, time.Millisecond)

	calls := 0
	err := m.Load(context.Background(), func(string, *record.Record) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestMirror_WritesApplyInOrder(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestMirror(t, backend)
	key := record.KeyFor(record.KindRecord, oppID)

	for i := 0; i < 20; i++ {
		m.Save(key, opportunity())
		m.Delete(key)
	}
	m.Save(key, opportunity())

	require.Eventually(t, func() bool { return m.pool.Stats().Processed == 41 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, backend.Len())
}

func TestMirror_LoadAcrossBatches(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	data, err := json.Marshal(opportunity())
	require.NoError(t, err)
	total := loadBatch + 44
	for i := 0; i < total; i++ {
		require.NoError(t, backend.Put(ctx, storage.EncodeKey(fmt.Sprintf("key-%04d", i)), data))
	}
	m := newTestMirror(t, backend)

	var keys []string
	require.NoError(t, m.Load(ctx, func(k string, _ *record.Record) error {
		keys = append(keys, k)
		return nil
	}))
	require.Len(t, keys, total)
	sort.Strings(keys)
	assert.Equal(t, "key-0000", keys[0])
	assert.Equal(t, fmt.Sprintf("key-%04d", total-1), keys[total-1])
}
