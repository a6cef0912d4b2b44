package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/metric"
)

type testWork struct {
	id   int
	fail bool
}

func noop(context.Context, testWork) error { return nil }

func TestNewPool(t *testing.T) {
	pool := NewPool(5, 100, noop)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)

	pool = NewPool(0, 0, noop)
	assert.Equal(t, 10, pool.workers)
	assert.Equal(t, 1000, pool.queueSize)

	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[testWork](1, 1, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(2, 10, noop)

	assert.Same(t, ErrPoolNotStarted, pool.Submit(testWork{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	assert.Same(t, ErrPoolAlreadyStarted, pool.Start(ctx))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Stop(time.Second))
	assert.Same(t, ErrPoolStopped, pool.Submit(testWork{id: 2}))
	assert.NoError(t, pool.Stop(time.Second), "second Stop is a no-op")
	assert.Equal(t, int64(1), pool.Stats().Processed)
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		started <- struct{}{}
		<-release
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started
	require.NoError(t, pool.Submit(testWork{id: 2}))
	assert.Same(t, ErrQueueFull, pool.Submit(testWork{id: 3}))

	close(release)
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.Submitted)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(2), stats.Processed)
}

func TestPool_ErrorHandler(t *testing.T) {
	var mu sync.Mutex
	var failedIDs []int
	boom := errors.New("boom")

	pool := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.fail {
			return boom
		}
		return nil
	}, WithErrorHandler[testWork](func(w testWork, err error) {
		assert.ErrorIs(t, err, boom)
		mu.Lock()
		failedIDs = append(failedIDs, w.id)
		mu.Unlock()
	}))

	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(testWork{id: i, fail: i%2 == 1}))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.ElementsMatch(t, []int{1, 3, 5}, failedIDs)
	assert.Equal(t, int64(3), pool.Stats().Failed)
}

func TestPool_ContextCancellation(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	cancel()

	assert.NoError(t, pool.Stop(time.Second))
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))

	assert.Same(t, ErrStopTimeout, pool.Stop(20*time.Millisecond))
}

func TestPool_ConcurrentSubmissions(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(4, 1000, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = pool.Submit(testWork{id: g*100 + i})
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, pool.Stop(5*time.Second))

	stats := pool.Stats()
	assert.Equal(t, stats.Submitted, processed.Load())
	assert.Equal(t, int64(500), stats.Submitted+stats.Dropped)
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 10, noop, WithMetricsRegistry[testWork](registry, "refetch"))
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	require.NoError(t, pool.Stop(time.Second))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "recordcache_worker_submitted_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestPool_ItemTimeout(t *testing.T) {
	var deadlineHit atomic.Bool
	inside := make(chan struct{})
	pool := NewPool(1, 4, func(ctx context.Context, _ testWork) error {
		close(inside)
		<-ctx.Done()
		deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}, WithItemTimeout[testWork](20*time.Millisecond))

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	<-inside
	assert.Equal(t, int64(1), pool.Stats().InFlight)

	require.NoError(t, pool.Stop(time.Second))
	assert.True(t, deadlineHit.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(0), stats.InFlight)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPool_DuplicateNameKeepsWorking(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	first := NewPool(1, 2, noop, WithMetricsRegistry[testWork](registry, "mirror"))
	second := NewPool(1, 2, noop, WithMetricsRegistry[testWork](registry, "mirror"))

	for _, p := range []*Pool[testWork]{first, second} {
		require.NoError(t, p.Start(context.Background()))
		require.NoError(t, p.Submit(testWork{}))
		require.NoError(t, p.Stop(time.Second))
		assert.Equal(t, int64(1), p.Stats().Processed)
	}
	assert.Contains(t, registry.Owned(), "mirror.worker_submitted")
}
