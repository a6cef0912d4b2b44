package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/recordcache/bridge"
	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/cache"
	"github.com/c360/recordcache/pkg/worker"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/store"
	"github.com/c360/recordcache/wave"
)

// Config sizes the stores and background work of a Service.
type Config struct {
	Records   cache.Config
	Datasets  cache.Config
	Templates cache.Config
	// ErrorTTL bounds how long a stored 404 answers requests; zero keeps it
	// until the slot is overwritten or reset.
	ErrorTTL time.Duration
	// FetchTimeout bounds one coalesced foreground fetch, which keeps running
	// after the caller that started it gives up.
	FetchTimeout time.Duration
	Refetch      RefetchConfig
	Ingest       ingest.Config
}

// DefaultConfig returns unbounded stores, a five minute error TTL, a two
// minute fetch bound and the default refetch pool.
func DefaultConfig() Config {
	return Config{
		Records:      cache.DefaultConfig(),
		Datasets:     cache.DefaultConfig(),
		Templates:    cache.DefaultConfig(),
		ErrorTTL:     5 * time.Minute,
		FetchTimeout: 2 * time.Minute,
		Refetch:      DefaultRefetchConfig(),
	}
}

// Dependencies holds the external collaborators of a Service. Upstream and
// Logger are required.
type Dependencies struct {
	Upstream        Upstream
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	// Mirror persists merged records. Optional.
	Mirror ingest.Mirror
}

// Service wires the record, dataset and template adapters over shared
// upstream, metrics and refetch infrastructure.
type Service struct {
	ingestor  *ingest.Ingestor
	records   *Records
	datasets  *Named[*wave.Dataset]
	templates *Named[*wave.Template]
	refetcher *Refetcher
	logger    *slog.Logger

	// restored holds refetches from Restore until Start runs the pool.
	startMu  sync.Mutex
	started  bool
	restored []record.FetchIntent
}

// Stats is a point-in-time view of the stores and the refetch pool.
type Stats struct {
	Records   StoreStats       `json:"records"`
	Datasets  StoreStats       `json:"datasets"`
	Templates StoreStats       `json:"templates"`
	Bridges   map[string]int   `json:"bridges"`
	Refetch   worker.PoolStats `json:"refetch"`
}

// StoreStats summarizes one store.
type StoreStats struct {
	Entries int                 `json:"entries"`
	Cache   *cache.StatsSummary `json:"cache,omitempty"`
}

// NewService builds a Service.
func NewService(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Upstream == nil {
		return nil, errors.WrapInvalid(nil, "Service", "New", "upstream is required")
	}
	if deps.Logger == nil {
		return nil, errors.WrapInvalid(nil, "Service", "New", "logger is required")
	}

	var (
		metrics   *metric.Metrics
		registrar metric.MetricsRegistrar
	)
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
		registrar = deps.MetricsRegistry
	}

	recordStore, err := store.New[*record.Record]("records", cfg.Records,
		storeOptions[*record.Record](registrar, "records")...)
	if err != nil {
		return nil, err
	}
	ingestor, err := ingest.New(ingest.Dependencies{
		Store:   recordStore,
		Logger:  deps.Logger,
		Metrics: metrics,
		Mirror:  deps.Mirror,
		Config:  cfg.Ingest,
	})
	if err != nil {
		return nil, err
	}

	refetcher := NewRefetcher(cfg.Refetch, deps.Upstream, ingestor, deps.MetricsRegistry, deps.Logger)

	datasets, err := newNamed(cfg.Datasets, "datasets", wave.DatasetKey, deps.Upstream.GetDataset,
		cfg, registrar, metrics, deps.Logger)
	if err != nil {
		return nil, err
	}
	templates, err := newNamed(cfg.Templates, "templates", wave.TemplateKey, deps.Upstream.GetTemplate,
		cfg, registrar, metrics, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		ingestor:  ingestor,
		records:   NewRecords(ingestor, deps.Upstream, refetcher, cfg.ErrorTTL, cfg.FetchTimeout, metrics, deps.Logger),
		datasets:  datasets,
		templates: templates,
		refetcher: refetcher,
		logger:    deps.Logger.With("component", "adapter"),
	}, nil
}

func newNamed[T wave.Asset](
	storeCfg cache.Config,
	name string,
	keyOf func(string) string,
	fetch func(context.Context, string) (T, error),
	cfg Config,
	registrar metric.MetricsRegistrar,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*Named[T], error) {
	b, err := bridge.New(name, registrar)
	if err != nil {
		return nil, err
	}
	s, err := store.New[T](name, storeCfg, storeOptions[T](registrar, name)...)
	if err != nil {
		return nil, err
	}
	return NewNamed(NamedConfig[T]{
		Name:     name,
		Bridge:   b,
		Store:    s,
		KeyOf:    keyOf,
		Fetch:    fetch,
		ErrorTTL: cfg.ErrorTTL,
		Metrics:  metrics,
		Logger:   logger,

		FetchTimeout: cfg.FetchTimeout,
	}), nil
}

func storeOptions[V any](registrar metric.MetricsRegistrar, name string) []cache.Option[store.Slot[V]] {
	if registrar == nil {
		return nil
	}
	return []cache.Option[store.Slot[V]]{cache.WithMetrics[store.Slot[V]](registrar, "store_"+name)}
}

// Start launches the refetch workers and queues the refetches left by Restore.
func (s *Service) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if err := s.refetcher.Start(ctx); err != nil {
		return errors.Wrap(err, "Service", "Start", "start refetcher")
	}
	s.started = true
	if len(s.restored) > 0 {
		s.refetcher.Dispatch(s.restored)
		s.restored = nil
	}
	s.logger.Info("adapters started")
	return nil
}

// Stop drains pending refetches for up to timeout.
func (s *Service) Stop(timeout time.Duration) error {
	if err := s.refetcher.Stop(timeout); err != nil {
		return errors.Wrap(err, "Service", "Stop", "stop refetcher")
	}
	s.logger.Info("adapters stopped")
	return nil
}

// GetRecord returns a record snapshot. See Records.GetRecord.
func (s *Service) GetRecord(ctx context.Context, cfg GetRecordConfig) (ingest.Snapshot, error) {
	return s.records.GetRecord(ctx, cfg)
}

// GetDataset returns a dataset by id or developer name.
func (s *Service) GetDataset(ctx context.Context, idOrName string) (*wave.Dataset, error) {
	return s.datasets.Get(ctx, idOrName)
}

// GetTemplate returns a template by id or developer name.
func (s *Service) GetTemplate(ctx context.Context, idOrName string) (*wave.Template, error) {
	return s.templates.Get(ctx, idOrName)
}

// Restore warms the record store from src. Restored pending fields are
// refetched in the background, right away when the service is running and
// otherwise once Start is called.
func (s *Service) Restore(ctx context.Context, src ingest.Source) (int, error) {
	n, intents, err := s.ingestor.Restore(ctx, src)
	if len(intents) > 0 {
		s.startMu.Lock()
		if s.started {
			s.refetcher.Dispatch(intents)
		} else {
			s.restored = append(s.restored, intents...)
		}
		s.startMu.Unlock()
	}
	return n, err
}

// Reset clears every store and bridging cache.
func (s *Service) Reset() error {
	if err := s.ingestor.Clear(); err != nil {
		return errors.Wrap(err, "Service", "Reset", "clear records")
	}
	if err := s.datasets.Reset(); err != nil {
		return errors.Wrap(err, "Service", "Reset", "clear datasets")
	}
	if err := s.templates.Reset(); err != nil {
		return errors.Wrap(err, "Service", "Reset", "clear templates")
	}
	s.logger.Info("caches reset")
	return nil
}

// Stats returns store and pool statistics.
func (s *Service) Stats() Stats {
	return Stats{
		Records:   storeStats(s.ingestor.Len(), s.ingestor.Stats()),
		Datasets:  storeStats(s.datasets.store.Len(), s.datasets.store.Stats()),
		Templates: storeStats(s.templates.store.Len(), s.templates.store.Stats()),
		Bridges: map[string]int{
			s.datasets.bridge.Name():  s.datasets.bridge.Len(),
			s.templates.bridge.Name(): s.templates.bridge.Len(),
		},
		Refetch: s.refetcher.Stats(),
	}
}

func storeStats(n int, stats *cache.Statistics) StoreStats {
	out := StoreStats{Entries: n}
	if stats != nil {
		summary := stats.Summary()
		out.Cache = &summary
	}
	return out
}
