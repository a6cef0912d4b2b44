package adapter

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/upstream"
)

// Dispatcher accepts fetch intents for background execution.
type Dispatcher interface {
	Dispatch(intents []record.FetchIntent)
}

// GetRecordConfig selects one record and the fields to return.
type GetRecordConfig struct {
	RecordID       string
	Fields         []string
	OptionalFields []string
}

// Records serves GetRecord.
type Records struct {
	ingestor   *ingest.Ingestor
	fetcher    RecordFetcher
	dispatcher Dispatcher
	errorTTL   time.Duration
	flight     *flight
	now        func() time.Time
	metrics    *metric.Metrics
	logger     *slog.Logger
}

// NewRecords creates the record adapter. dispatcher may be nil, in which case
// fetch intents are dropped. fetchTimeout bounds one coalesced upstream call;
// zero leaves it unbounded.
func NewRecords(ingestor *ingest.Ingestor, fetcher RecordFetcher, dispatcher Dispatcher,
	errorTTL, fetchTimeout time.Duration, metrics *metric.Metrics, logger *slog.Logger,
) *Records {
	return &Records{
		ingestor:   ingestor,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		errorTTL:   errorTTL,
		flight:     &flight{timeout: fetchTimeout},
		now:        time.Now,
		metrics:    metrics,
		logger:     logger.With("adapter", "records"),
	}
}

// GetRecord returns a snapshot of the requested record, fetching upstream when
// the store cannot satisfy every field. A 404 is stored and returned as a
// snapshot in StateError.
func (r *Records) GetRecord(ctx context.Context, cfg GetRecordConfig) (ingest.Snapshot, error) {
	id, err := validate(cfg)
	if err != nil {
		return ingest.Snapshot{}, err
	}

	key := record.KeyFor(record.KindRecord, id)
	snap := r.ingestor.Read(key, cfg.Fields, cfg.OptionalFields)
	switch snap.State {
	case ingest.StateFulfilled:
		return snap, nil
	case ingest.StateError:
		if !snap.Error.Expired(r.errorTTL, r.now()) {
			return snap, nil
		}
	}

	v, err := r.flight.do(ctx, "records", flightKey(id, cfg), func(ctx context.Context) (any, error) {
		return r.fetch(ctx, id, key, cfg)
	})
	if err != nil {
		if isNotFound(err) {
			return r.ingestor.Read(key, cfg.Fields, cfg.OptionalFields), nil
		}
		return ingest.Snapshot{}, err
	}

	res := v.(ingest.Result)
	return r.ingestor.Read(res.Key, cfg.Fields, cfg.OptionalFields), nil
}

func (r *Records) fetch(ctx context.Context, id, key string, cfg GetRecordConfig) (ingest.Result, error) {
	payload, err := r.fetcher.GetRecord(ctx, id, cfg.Fields, cfg.OptionalFields)
	if err != nil {
		if isNotFound(err) {
			if storeErr := r.ingestor.StoreError(key, upstream.StatusOf(err), err.Error()); storeErr != nil {
				r.logger.Warn("failed to record upstream 404", "key", key, "error", storeErr)
			}
		}
		return ingest.Result{}, err
	}

	res, err := r.ingestor.Ingest(payload, ingest.Options{Fields: cfg.Fields, OptionalFields: cfg.OptionalFields})
	if err != nil {
		r.metrics.RecordError("records", errors.Classify(err).String())
		return ingest.Result{}, err
	}
	if len(res.Intents) > 0 && r.dispatcher != nil {
		r.dispatcher.Dispatch(res.Intents)
	}
	return res, nil
}

func validate(cfg GetRecordConfig) (string, error) {
	id, err := record.CanonicalID(cfg.RecordID)
	if err != nil {
		return "", err
	}
	if len(cfg.Fields) == 0 && len(cfg.OptionalFields) == 0 {
		return "", errors.WrapInvalid(errors.ErrInvalidFieldName, "records", "GetRecord",
			"at least one field or optional field is required")
	}
	for _, list := range [][]string{cfg.Fields, cfg.OptionalFields} {
		for _, f := range list {
			if _, _, err := record.SplitQualified(f); err != nil {
				return "", err
			}
		}
	}
	return id, nil
}

// flightKey identifies requests that can share one upstream call.
func flightKey(id string, cfg GetRecordConfig) string {
	fields := append([]string(nil), cfg.Fields...)
	optional := append([]string(nil), cfg.OptionalFields...)
	sort.Strings(fields)
	sort.Strings(optional)
	return id + "|" + strings.Join(fields, ",") + "|" + strings.Join(optional, ",")
}
