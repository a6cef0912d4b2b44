package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/adapter"
	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/store"
	"github.com/c360/recordcache/wave"
)

// MockService implements Service for testing
type MockService struct {
	mock.Mock
}

func (m *MockService) GetRecord(ctx context.Context, cfg adapter.GetRecordConfig) (ingest.Snapshot, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(ingest.Snapshot), args.Error(1)
}

func (m *MockService) GetDataset(ctx context.Context, idOrName string) (*wave.Dataset, error) {
	args := m.Called(ctx, idOrName)
	if ds := args.Get(0); ds != nil {
		return ds.(*wave.Dataset), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) GetTemplate(ctx context.Context, idOrName string) (*wave.Template, error) {
	args := m.Called(ctx, idOrName)
	if tpl := args.Get(0); tpl != nil {
		return tpl.(*wave.Template), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) Reset() error {
	return m.Called().Error(0)
}

func (m *MockService) Stats() adapter.Stats {
	return m.Called().Get(0).(adapter.Stats)
}

func newMockServer(t *testing.T, svc *MockService) (*httptest.Server, *metric.MetricsRegistry) {
	t.Helper()
	registry := metric.NewMetricsRegistry()
	h, err := NewHandler(HandlerDeps{Service: svc, MetricsRegistry: registry, Logger: discardLogger()})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, registry
}

func get(t *testing.T, srv *httptest.Server, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_ResetFailure(t *testing.T) {
	svc := &MockService{}
	svc.On("Reset").Return(errors.WrapFatal(errors.ErrDataCorrupted, "Service", "Reset", "clear records"))
	srv, registry := newMockServer(t, svc)

	resp := get(t, srv, http.MethodPost, "/cache/reset")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Error)

	requests := registry.CoreMetrics().GatewayRequests
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("POST /cache/reset", "500")))
	svc.AssertExpectations(t)
}

func TestHandler_RecordSnapshotStates(t *testing.T) {
	const id = "001xx000003DGb2AAG"
	pending := &record.Record{ID: id, APIName: "Account", Version: record.Known(2),
		Fields: map[string]record.FieldValue{"Name": {Value: "Acme", State: record.Pending}}}

	tests := []struct {
		name      string
		snap      ingest.Snapshot
		wantCode  int
		wantState string
	}{
		{"pending is served", ingest.Snapshot{Key: "k", State: ingest.StatePending, Data: pending, PendingFields: []string{"Account.Name"}}, http.StatusOK, "pending"},
		{"unfulfilled is served", ingest.Snapshot{Key: "k", State: ingest.StateUnfulfilled, AbsentFields: []string{"Account.Name"}}, http.StatusOK, "unfulfilled"},
		{"error replays status", ingest.Snapshot{Key: "k", State: ingest.StateError, Error: &store.ErrorEntry{Status: http.StatusForbidden}}, http.StatusForbidden, ""},
		{"error without status", ingest.Snapshot{Key: "k", State: ingest.StateError, Error: &store.ErrorEntry{}}, http.StatusBadGateway, ""},
		{"missing", ingest.Snapshot{Key: "k", State: ingest.StateMissing}, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{}
			svc.On("GetRecord", mock.Anything, adapter.GetRecordConfig{RecordID: id, Fields: []string{"Account.Name"}}).
				Return(tt.snap, nil).Once()
			srv, _ := newMockServer(t, svc)

			resp := get(t, srv, http.MethodGet, "/records/"+id+"?fields=Account.Name")
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantState != "" {
				var body RecordResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.wantState, body.State)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_UpstreamFailures(t *testing.T) {
	svc := &MockService{}
	svc.On("GetDataset", mock.Anything, "Sales").
		Return(nil, errors.WrapTransient(fmt.Errorf("dial tcp: %w", errors.ErrConnectionLost), "upstream", "GetDataset", "GET"))
	svc.On("GetTemplate", mock.Anything, "Flow").
		Return(nil, errors.WrapTransient(errors.ErrUpstreamStatus, "upstream", "GetTemplate", "GET"))
	srv, registry := newMockServer(t, svc)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, http.MethodGet, "/datasets/Sales").StatusCode)
	assert.Equal(t, http.StatusBadGateway, get(t, srv, http.MethodGet, "/templates/Flow").StatusCode)

	requests := registry.CoreMetrics().GatewayRequests
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("GET /datasets/{idOrName}", "503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("GET /templates/{idOrName}", "502")))
	svc.AssertExpectations(t)
}
