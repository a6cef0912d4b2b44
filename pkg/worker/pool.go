package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/recordcache/metric"
)

// Pool runs a processor over queued items of type T on a fixed set of
// goroutines. Submit never blocks; a full queue drops the item.
type Pool[T any] struct {
	workers     int
	queueSize   int
	processor   func(context.Context, T) error
	onError     func(T, error)
	itemTimeout time.Duration

	queue   chan T
	metrics *poolMetrics
	wg      sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	inFlight  atomic.Int64

	registry metric.MetricsRegistrar
	name     string
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry exports pool metrics labelled pool=name.
func WithMetricsRegistry[T any](registry metric.MetricsRegistrar, name string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.name = name
	}
}

// WithErrorHandler is called with every item whose processing failed.
func WithErrorHandler[T any](fn func(T, error)) Option[T] {
	return func(p *Pool[T]) {
		p.onError = fn
	}
}

// WithItemTimeout bounds the context each item is processed with.
func WithItemTimeout[T any](d time.Duration) Option[T] {
	return func(p *Pool[T]) {
		p.itemTimeout = d
	}
}

// NewPool creates a pool. Non-positive sizes fall back to 10 workers and a
// 1000 item queue. It panics when processor is nil.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		queue:     make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.name != "" {
		p.metrics = newPoolMetrics(p.registry, p.name)
	}
	return p
}

// Submit queues work. It returns ErrQueueFull without blocking when the queue
// is at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	switch {
	case !p.started:
		return ErrPoolNotStarted
	case p.stopped:
		return ErrPoolStopped
	}

	select {
	case p.queue <- work:
		p.submitted.Add(1)
		p.metrics.enqueued(len(p.queue))
		return nil
	default:
		p.dropped.Add(1)
		p.metrics.drop()
		return ErrQueueFull
	}
}

// Start launches the workers. They exit when ctx ends or Stop drains the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	p.started = true
	p.wg.Add(p.workers)
	for range p.workers {
		go p.run(ctx)
	}
	return nil
}

// Stop closes the queue and waits up to timeout for queued work to finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// PoolStats is a point-in-time view of pool counters.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	InFlight   int64 `json:"in_flight"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		InFlight:   p.inFlight.Load(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(ctx, work)
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, work T) {
	if p.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		defer cancel()
	}

	p.inFlight.Add(1)
	start := time.Now()
	err := p.processor(ctx, work)
	p.inFlight.Add(-1)
	p.processed.Add(1)

	if err != nil {
		p.failed.Add(1)
		if p.onError != nil {
			p.onError(work, err)
		}
	}
	p.metrics.done(err, time.Since(start), len(p.queue))
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	dropped    prometheus.Counter
	duration   *prometheus.HistogramVec
}

// newPoolMetrics registers the pool collectors. A registration conflict leaves
// them unexported but usable, so a repeated pool name never fails startup.
func newPoolMetrics(registry metric.MetricsRegistrar, name string) *poolMetrics {
	labels := prometheus.Labels{"pool": name}
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recordcache", Subsystem: "worker", Name: "queue_depth",
			Help: "Items waiting in the pool queue", ConstLabels: labels,
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordcache", Subsystem: "worker", Name: "submitted_total",
			Help: "Items accepted into the pool queue", ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordcache", Subsystem: "worker", Name: "dropped_total",
			Help: "Items rejected because the queue was full", ConstLabels: labels,
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recordcache", Subsystem: "worker", Name: "processing_duration_seconds",
			Help:        "Time spent processing one item",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"status"}),
	}
	for metricName, c := range map[string]prometheus.Collector{
		"worker_queue_depth":         m.queueDepth,
		"worker_submitted":           m.submitted,
		"worker_dropped":             m.dropped,
		"worker_processing_duration": m.duration,
	} {
		_ = registry.Register(name, metricName, c)
	}
	return m
}

func (m *poolMetrics) enqueued(depth int) {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *poolMetrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *poolMetrics) done(err error, elapsed time.Duration, depth int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.queueDepth.Set(float64(depth))
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}
