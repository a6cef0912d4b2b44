package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/recordcache/bridge"
	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/store"
	"github.com/c360/recordcache/upstream"
	"github.com/c360/recordcache/wave"
)

// NamedConfig wires one name-bridged adapter.
type NamedConfig[T wave.Asset] struct {
	// Name labels logs and metrics, for example "datasets".
	Name     string
	Bridge   *bridge.Cache
	Store    *store.Store[T]
	KeyOf    func(id string) string
	Fetch    func(ctx context.Context, idOrName string) (T, error)
	ErrorTTL time.Duration
	Metrics  *metric.Metrics
	Logger   *slog.Logger
	// FetchTimeout bounds one coalesced upstream call; zero leaves it unbounded.
	FetchTimeout time.Duration
}

// Named serves assets that can be requested by id or by developer name. The
// bridge maps whatever identifier a caller used to the canonical id so repeat
// lookups by name go straight to the id-keyed store.
type Named[T wave.Asset] struct {
	name     string
	bridge   *bridge.Cache
	store    *store.Store[T]
	keyOf    func(string) string
	fetch    func(context.Context, string) (T, error)
	errorTTL time.Duration
	flight   *flight
	now      func() time.Time
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewNamed creates a name-bridged adapter.
func NewNamed[T wave.Asset](cfg NamedConfig[T]) *Named[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Named[T]{
		name:     cfg.Name,
		bridge:   cfg.Bridge,
		store:    cfg.Store,
		keyOf:    cfg.KeyOf,
		fetch:    cfg.Fetch,
		errorTTL: cfg.ErrorTTL,
		flight:   &flight{timeout: cfg.FetchTimeout},
		now:      time.Now,
		metrics:  cfg.Metrics,
		logger:   logger.With("adapter", cfg.Name),
	}
}

// Get returns the asset identified by idOrName.
func (n *Named[T]) Get(ctx context.Context, idOrName string) (T, error) {
	var zero T
	if idOrName == "" {
		return zero, errors.WrapInvalid(errors.ErrInvalidData, n.name, "Get", "id or name is required")
	}

	id, bridged := n.bridge.Get(idOrName)
	if !bridged {
		id = idOrName
	}

	if slot, ok := n.store.Get(n.keyOf(id)); ok {
		switch {
		case !slot.IsError():
			return slot.Value, nil
		case !slot.Error.Expired(n.errorTTL, n.now()):
			return zero, errorFromEntry(n.name, slot.Error)
		}
	}

	// A bridged name is fetched by its id so the name lookup is not repeated.
	v, err := n.flight.do(ctx, n.name, id, func(ctx context.Context) (any, error) {
		return n.fetchAndStore(ctx, idOrName, id, bridged)
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (n *Named[T]) fetchAndStore(ctx context.Context, idOrName, knownID string, bridged bool) (T, error) {
	asset, err := n.fetch(ctx, knownID)
	if err != nil {
		n.bridge.Remove(idOrName)
		if bridged && isNotFound(err) {
			if storeErr := n.store.PutError(n.keyOf(knownID), upstream.StatusOf(err), err.Error()); storeErr != nil {
				n.logger.Warn("failed to record upstream 404", "id", knownID, "error", storeErr)
			}
		}
		n.metrics.RecordError(n.name, errors.Classify(err).String())
		return asset, err
	}

	id := asset.AssetID()
	if id == "" {
		var zero T
		return zero, errors.WrapInvalid(errors.ErrInvalidData, n.name, "Get", "response has no id")
	}

	n.bridge.Set(idOrName, id)
	if err := n.store.Put(n.keyOf(id), asset); err != nil {
		return asset, errors.WrapTransient(err, n.name, "Get", "store "+id)
	}
	n.metrics.RecordIngestion(n.name)
	n.logger.Debug("stored asset", "requested", idOrName, "id", id, "name", asset.AssetName())
	return asset, nil
}

// Reset clears the bridge and the store.
func (n *Named[T]) Reset() error {
	n.bridge.Clear()
	return n.store.Clear()
}

// Bridge returns the adapter's bridging cache.
func (n *Named[T]) Bridge() *bridge.Cache {
	return n.bridge
}
