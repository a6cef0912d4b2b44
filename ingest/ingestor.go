// Package ingest applies record payloads to the normalized store. Spanning
// records are stored under their own keys and replaced by links; each stored
// record goes through record.Merger. Reads walk links back into a snapshot.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/cache"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/store"
)

// Mirror receives every record written to the store. Save must not block.
type Mirror interface {
	Save(key string, r *record.Record)
	Delete(key string)
}

// Source replays previously mirrored records.
type Source interface {
	Load(ctx context.Context, fn func(key string, r *record.Record) error) error
}

// Config tunes merge behavior.
type Config struct {
	TrackedFieldDepth int
	SupportedEntities []string
}

// Dependencies holds the collaborators of an Ingestor. Store and Logger are required.
type Dependencies struct {
	Store   *store.Store[*record.Record]
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Mirror  Mirror
	Config  Config
}

// Options are the request parameters that accompanied a payload.
type Options struct {
	Fields         []string
	OptionalFields []string
}

// Result reports where the payload was stored and which refetches it requires.
type Result struct {
	Key     string
	Intents []record.FetchIntent
}

// Ingestor serializes all writes to a record store.
type Ingestor struct {
	mu      sync.Mutex
	records *store.Store[*record.Record]
	merger  *record.Merger
	mirror  Mirror
	metrics *metric.Metrics
	logger  *slog.Logger
}

// New creates an Ingestor.
func New(deps Dependencies) (*Ingestor, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(nil, "Ingestor", "New", "store is required")
	}
	if deps.Logger == nil {
		return nil, errors.WrapInvalid(nil, "Ingestor", "New", "logger is required")
	}

	i := &Ingestor{
		records: deps.Store,
		mirror:  deps.Mirror,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "ingest"),
	}

	opts := []record.MergerOption{record.WithLinkResolver(i.lookup)}
	if deps.Config.TrackedFieldDepth > 0 {
		opts = append(opts, record.WithTrackedFieldDepth(deps.Config.TrackedFieldDepth))
	}
	if len(deps.Config.SupportedEntities) > 0 {
		opts = append(opts, record.WithSupportedEntities(
			record.NewSupportedEntities(deps.Config.SupportedEntities...)))
	}
	i.merger = record.NewMerger(opts...)
	return i, nil
}

// Ingest merges payload and every record nested in it into the store.
// payload is not modified.
func (i *Ingestor) Ingest(payload *record.Record, opts Options) (Result, error) {
	if payload == nil {
		return Result{}, errors.WrapInvalid(errors.ErrInvalidData, "Ingestor", "Ingest", "nil payload")
	}

	rec := payload.Clone()
	markMissing(rec, opts.OptionalFields)

	i.mu.Lock()
	defer i.mu.Unlock()

	var intents []record.FetchIntent
	key, err := i.ingestLocked(rec, 0, &intents)
	if err != nil {
		return Result{}, err
	}
	return Result{Key: key, Intents: record.CoalesceIntents(intents)}, nil
}

func (i *Ingestor) ingestLocked(rec *record.Record, depth int, intents *[]record.FetchIntent) (string, error) {
	if rec.ID == "" || rec.APIName == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Ingestor", "Ingest",
			fmt.Sprintf("record at depth %d lacks id or apiName", depth))
	}
	rec.ID = record.CanonicalIDOrSelf(rec.ID)

	for name, fv := range rec.Fields {
		if fv.Record == nil {
			continue
		}
		link, err := i.ingestLocked(fv.Record, depth+1, intents)
		if err != nil {
			return "", err
		}
		fv.Record = nil
		fv.Link = link
		rec.Fields[name] = fv
	}

	key := record.KeyOf(rec)
	var existing *store.Slot[*record.Record]
	if slot, ok := i.records.Get(key); ok {
		existing = &slot
	}

	res := i.merger.Merge(existing, rec)
	if err := i.records.Put(key, res.Record); err != nil {
		return "", errors.WrapTransient(err, "Ingestor", "Ingest", "store "+key)
	}

	i.metrics.RecordIngestion(rec.Kind().String())
	i.metrics.RecordMerge(string(res.Outcome))
	if len(res.Refetch) > 0 {
		i.metrics.RecordRefetchIntents(len(res.Refetch))
		i.logger.Debug("merge left fields pending",
			"key", key,
			"version", res.Record.Version.String(),
			"fields", res.Refetch[0].Fields)
		*intents = append(*intents, res.Refetch...)
	}
	if i.mirror != nil {
		i.mirror.Save(key, res.Record)
	}
	return key, nil
}

// markMissing adds a Missing field for every requested optional field the
// server did not return. Paths through null or absent spanning fields stop early.
func markMissing(rec *record.Record, optionalFields []string) {
	for _, qualified := range optionalFields {
		apiName, path, err := record.SplitQualified(qualified)
		if err != nil || apiName != rec.APIName {
			continue
		}
		cur := rec
		for idx, name := range path {
			if cur.Fields == nil {
				cur.Fields = map[string]record.FieldValue{}
			}
			fv, ok := cur.Fields[name]
			if !ok {
				cur.Fields[name] = record.FieldValue{State: record.Missing}
				break
			}
			if idx == len(path)-1 || fv.Record == nil {
				break
			}
			cur = fv.Record
		}
	}
}

// Lookup returns the record stored under key.
func (i *Ingestor) Lookup(key string) (*record.Record, bool) {
	return i.lookup(key)
}

func (i *Ingestor) lookup(key string) (*record.Record, bool) {
	slot, ok := i.records.Get(key)
	if !ok || slot.IsError() || slot.Value == nil {
		return nil, false
	}
	return slot.Value, true
}

// StoreError records a failure at key, replacing any stored record.
func (i *Ingestor) StoreError(key string, status int, message string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.records.PutError(key, status, message); err != nil {
		return errors.WrapTransient(err, "Ingestor", "StoreError", "store "+key)
	}
	if i.mirror != nil {
		i.mirror.Delete(key)
	}
	return nil
}

// Evict removes key from the store and the mirror.
func (i *Ingestor) Evict(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.mirror != nil {
		i.mirror.Delete(key)
	}
	return i.records.Evict(key)
}

// Clear empties the in-memory store. The mirror is left intact.
func (i *Ingestor) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.records.Clear()
}

// Len returns the number of stored slots.
func (i *Ingestor) Len() int {
	return i.records.Len()
}

// Stats returns the record store statistics.
func (i *Ingestor) Stats() *cache.Statistics {
	return i.records.Stats()
}

// Restore merges every record from src into the store without mirroring it
// back. It returns the number restored and the refetches their pending
// fields still need, coalesced per record.
func (i *Ingestor) Restore(ctx context.Context, src Source) (int, []record.FetchIntent, error) {
	restored := 0
	var intents []record.FetchIntent
	err := src.Load(ctx, func(key string, r *record.Record) error {
		if r == nil || record.KeyOf(r) != key {
			i.logger.Warn("skipping mirrored record with mismatched key", "key", key)
			return nil
		}

		i.mu.Lock()
		defer i.mu.Unlock()

		var existing *store.Slot[*record.Record]
		if slot, ok := i.records.Get(key); ok {
			existing = &slot
		}
		res := i.merger.Merge(existing, r)
		if err := i.records.Put(key, res.Record); err != nil {
			return err
		}
		intents = append(intents, res.Refetch...)
		if intent, ok := record.PendingIntent(res.Record); ok {
			intents = append(intents, intent)
		}
		restored++
		return nil
	})
	intents = record.CoalesceIntents(intents)
	if err != nil {
		return restored, intents, errors.WrapTransient(err, "Ingestor", "Restore", "load mirror")
	}
	if len(intents) > 0 {
		i.metrics.RecordRefetchIntents(len(intents))
	}
	i.logger.Info("restored records from mirror", "count", restored, "refetches", len(intents))
	return restored, intents, nil
}
