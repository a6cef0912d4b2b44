package adapter

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/worker"
	"github.com/c360/recordcache/record"
)

// Refetch result labels.
const (
	refetchSuccess = "success"
	refetchError   = "error"
	refetchDropped = "dropped"
)

// RefetchConfig sizes the background refetch pool.
type RefetchConfig struct {
	Workers   int
	QueueSize int
	// RatePerSecond limits upstream refetches; zero disables the limit.
	RatePerSecond float64
	Burst         int
}

// DefaultRefetchConfig returns a small pool limited to 10 refetches per second.
func DefaultRefetchConfig() RefetchConfig {
	return RefetchConfig{Workers: 4, QueueSize: 256, RatePerSecond: 10, Burst: 5}
}

// Refetcher runs fetch intents on a worker pool and ingests the responses.
// Intents for the same record are not deduplicated across dispatches.
type Refetcher struct {
	pool     *worker.Pool[record.FetchIntent]
	limiter  *rate.Limiter
	fetcher  RecordFetcher
	ingestor *ingest.Ingestor
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewRefetcher creates a Refetcher. registry may be nil.
func NewRefetcher(cfg RefetchConfig, fetcher RecordFetcher, ingestor *ingest.Ingestor,
	registry *metric.MetricsRegistry, logger *slog.Logger,
) *Refetcher {
	r := &Refetcher{
		limiter:  rate.NewLimiter(rate.Inf, 0),
		fetcher:  fetcher,
		ingestor: ingestor,
		logger:   logger.With("component", "refetcher"),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	opts := []worker.Option[record.FetchIntent]{
		worker.WithErrorHandler[record.FetchIntent](r.onError),
	}
	if registry != nil {
		r.metrics = registry.CoreMetrics()
		opts = append(opts, worker.WithMetricsRegistry[record.FetchIntent](registry, "refetch"))
	}
	r.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, r.process, opts...)
	return r
}

// Start launches the workers.
func (r *Refetcher) Start(ctx context.Context) error {
	return r.pool.Start(ctx)
}

// Stop drains queued intents for up to timeout.
func (r *Refetcher) Stop(timeout time.Duration) error {
	return r.pool.Stop(timeout)
}

// Stats returns pool statistics.
func (r *Refetcher) Stats() worker.PoolStats {
	return r.pool.Stats()
}

// Dispatch queues intents without blocking. Intents that do not fit are dropped
// and their fields stay pending.
func (r *Refetcher) Dispatch(intents []record.FetchIntent) {
	for _, intent := range intents {
		if err := r.pool.Submit(intent); err != nil {
			r.metrics.RecordRefetch(refetchDropped)
			r.logger.Warn("refetch not queued",
				"record_id", intent.RecordID, "fields", intent.Fields, "error", err)
		}
	}
}

func (r *Refetcher) process(ctx context.Context, intent record.FetchIntent) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.WrapTransient(err, "refetcher", "process", "wait for rate limit")
	}

	payload, err := r.fetcher.GetRecord(ctx, intent.RecordID, nil, intent.Fields)
	if err != nil {
		return err
	}
	res, err := r.ingestor.Ingest(payload, ingest.Options{OptionalFields: intent.Fields})
	if err != nil {
		return err
	}

	r.metrics.RecordRefetch(refetchSuccess)
	r.logger.Debug("refetch ingested", "key", res.Key, "fields", len(intent.Fields))
	if len(res.Intents) > 0 {
		r.Dispatch(res.Intents)
	}
	return nil
}

func (r *Refetcher) onError(intent record.FetchIntent, err error) {
	r.metrics.RecordRefetch(refetchError)
	level := slog.LevelWarn
	if stderrors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	r.logger.Log(context.Background(), level, "refetch failed",
		"record_id", intent.RecordID, "fields", intent.Fields, "error", err)
}
