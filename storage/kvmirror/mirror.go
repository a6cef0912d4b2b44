// Package kvmirror persists merged records to a storage.Store so a restarted
// process can warm its record store. Writes are queued and applied in order by
// a single background worker; a full queue drops the write.
package kvmirror

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/worker"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/storage"
)

const component = "kvmirror"

const (
	loadBatch       = 256
	loadConcurrency = 8
)

// Config sizes the write queue.
type Config struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// DefaultConfig returns a 1024-entry queue and a 5s write timeout.
func DefaultConfig() Config {
	return Config{QueueSize: 1024, WriteTimeout: 5 * time.Second}
}

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type op struct {
	kind opKind
	key  string
	data []byte
}

// Mirror writes records to a storage.Store in the background and reads them back.
type Mirror struct {
	store   storage.Store
	pool    *worker.Pool[op]
	metrics *metric.Metrics
	logger  *slog.Logger
}

// New creates a Mirror over store. registry may be nil.
func New(cfg Config, store storage.Store, registry *metric.MetricsRegistry, logger *slog.Logger) *Mirror {
	m := &Mirror{
		store:   store,
		logger:  logger.With("component", component),
	}

	opts := []worker.Option[op]{
		worker.WithErrorHandler[op](m.onError),
		worker.WithItemTimeout[op](cfg.WriteTimeout),
	}
	if registry != nil {
		m.metrics = registry.CoreMetrics()
		opts = append(opts, worker.WithMetricsRegistry[op](registry, component))
	}
	m.pool = worker.NewPool(1, cfg.QueueSize, m.apply, opts...)
	return m
}

// Start launches the writer.
func (m *Mirror) Start(ctx context.Context) error {
	return m.pool.Start(ctx)
}

// Stop flushes queued writes for up to timeout.
func (m *Mirror) Stop(timeout time.Duration) error {
	return m.pool.Stop(timeout)
}

// Save queues r for writing under key.
func (m *Mirror) Save(key string, r *record.Record) {
	data, err := json.Marshal(r)
	if err != nil {
		m.metrics.RecordError(component, errors.ErrorInvalid.String())
		m.logger.Error("failed to encode record", "key", key, "error", err)
		return
	}
	m.submit(op{kind: opPut, key: key, data: data})
}

// Delete queues removal of key.
func (m *Mirror) Delete(key string) {
	m.submit(op{kind: opDelete, key: key})
}

func (m *Mirror) submit(o op) {
	if err := m.pool.Submit(o); err != nil {
		m.metrics.RecordError(component, errors.ErrorTransient.String())
		m.logger.Warn("mirror write dropped", "key", o.key, "error", err)
	}
}

func (m *Mirror) apply(ctx context.Context, o op) error {
	encoded := storage.EncodeKey(o.key)
	switch o.kind {
	case opPut:
		return m.store.Put(ctx, encoded, o.data)
	case opDelete:
		return m.store.Delete(ctx, encoded)
	default:
		return errors.WrapInvalid(nil, component, "apply", "unknown operation")
	}
}

func (m *Mirror) onError(o op, err error) {
	m.metrics.RecordError(component, errors.Classify(err).String())
	m.logger.Warn("mirror write failed", "key", o.key, "error", err)
}

// Load calls fn for every mirrored record in key order. Values are fetched
// in batches with bounded concurrency; fn itself runs sequentially. Entries
// that cannot be decoded are skipped; an error from fn stops the scan.
func (m *Mirror) Load(ctx context.Context, fn func(key string, r *record.Record) error) error {
	keys, err := m.store.List(ctx)
	if err != nil {
		return errors.WrapTransient(err, component, "Load", "list keys")
	}

	for start := 0; start < len(keys); start += loadBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := keys[start:min(start+loadBatch, len(keys))]
		values, err := m.fetchBatch(ctx, batch)
		if err != nil {
			return err
		}
		for i, encoded := range batch {
			if values[i] == nil {
				continue
			}
			key, err := storage.DecodeKey(encoded)
			if err != nil {
				m.logger.Warn("skipping undecodable key", "key", encoded, "error", err)
				continue
			}
			var r record.Record
			if err := json.Unmarshal(values[i], &r); err != nil {
				m.logger.Warn("skipping undecodable record", "key", key, "error", err)
				continue
			}
			if err := fn(key, &r); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchBatch reads every key of batch; a key deleted since List yields nil.
func (m *Mirror) fetchBatch(ctx context.Context, batch []string) ([][]byte, error) {
	values := make([][]byte, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, encoded := range batch {
		g.Go(func() error {
			data, err := m.store.Get(gctx, encoded)
			if stderrors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return errors.WrapTransient(err, component, "Load", "get "+encoded)
			}
			values[i] = data
			return nil
		})
	}
	return values, g.Wait()
}
