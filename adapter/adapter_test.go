package adapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/pkg/cache"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/store"
	"github.com/c360/recordcache/upstream"
	"github.com/c360/recordcache/wave"
)

const oppID = "006xx000001a2b3AAA"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUpstream serves canned responses and counts calls.
type fakeUpstream struct {
	mu        sync.Mutex
	records   []*record.Record
	datasets  map[string]*wave.Dataset
	templates map[string]*wave.Template

	recordCalls  atomic.Int32
	datasetCalls atomic.Int32
	requested    [][]string
	datasetAsks  []string
	block        chan struct{}
}

func (f *fakeUpstream) GetRecord(ctx context.Context, id string, fields, optional []string) (*record.Record, error) {
	f.recordCalls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, append(append([]string(nil), fields...), optional...))
	if len(f.records) == 0 {
		return nil, &upstream.StatusError{Endpoint: upstream.EndpointRecords, Status: http.StatusNotFound, Message: id}
	}
	next := f.records[0]
	if len(f.records) > 1 {
		f.records = f.records[1:]
	}
	return next.Clone(), nil
}

func (f *fakeUpstream) GetDataset(_ context.Context, idOrName string) (*wave.Dataset, error) {
	f.datasetCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasetAsks = append(f.datasetAsks, idOrName)
	if d, ok := f.datasets[idOrName]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, &upstream.StatusError{Endpoint: upstream.EndpointDatasets, Status: http.StatusNotFound}
}

func (f *fakeUpstream) GetTemplate(_ context.Context, idOrName string) (*wave.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.templates[idOrName]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, &upstream.StatusError{Endpoint: upstream.EndpointTemplates, Status: http.StatusNotFound}
}

func (f *fakeUpstream) setRecords(recs ...*record.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = recs
}

// recordingDispatcher captures dispatched intents.
type recordingDispatcher struct {
	mu      sync.Mutex
	intents []record.FetchIntent
}

func (d *recordingDispatcher) Dispatch(intents []record.FetchIntent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intents = append(d.intents, intents...)
}

func (d *recordingDispatcher) all() []record.FetchIntent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]record.FetchIntent(nil), d.intents...)
}

func opportunity(version int64, fields map[string]any) *record.Record {
	r := &record.Record{APIName: "Opportunity", ID: oppID, Version: record.VersionFromWire(version),
		Fields: map[string]record.FieldValue{}}
	for k, v := range fields {
		r.Fields[k] = record.FieldValue{Value: v}
	}
	return r
}

func newTestIngestor(t *testing.T) *ingest.Ingestor {
	t.Helper()
	s, err := store.New[*record.Record]("records", cache.DefaultConfig())
	require.NoError(t, err)
	i, err := ingest.New(ingest.Dependencies{Store: s, Logger: discardLogger()})
	require.NoError(t, err)
	return i
}

func (f *fakeUpstream) askedDatasets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.datasetAsks...)
}

func (f *fakeUpstream) requestedFields() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.requested...)
}
