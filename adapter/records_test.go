package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/ingest"
)

func newTestRecords(t *testing.T, up *fakeUpstream, d Dispatcher) *Records {
	t.Helper()
	return NewRecords(newTestIngestor(t), up, d, time.Minute, 0, nil, discardLogger())
}

func TestGetRecord_FetchesOnceThenServesFromStore(t *testing.T) {
	up := &fakeUpstream{}
	up.setRecords(opportunity(3, map[string]any{"Name": "Deal", "Amount": 10}))
	r := newTestRecords(t, up, nil)
	cfg := GetRecordConfig{RecordID: oppID, Fields: []string{"Opportunity.Name"}, OptionalFields: []string{"Opportunity.Amount"}}

	snap, err := r.GetRecord(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StateFulfilled, snap.State)
	assert.Equal(t, "Deal", snap.Data.Fields["Name"].Value)

	snap, err = r.GetRecord(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StateFulfilled, snap.State)
	assert.EqualValues(t, 1, up.recordCalls.Load())
}

func TestGetRecord_Validation(t *testing.T) {
	r := newTestRecords(t, &fakeUpstream{}, nil)

	tests := []struct {
		name string
		cfg  GetRecordConfig
	}{
		{"short id", GetRecordConfig{RecordID: "006", Fields: []string{"Opportunity.Name"}}},
		{"no fields", GetRecordConfig{RecordID: oppID}},
		{"bad field", GetRecordConfig{RecordID: oppID, Fields: []string{"Name"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.GetRecord(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestGetRecord_NotFoundIsStored(t *testing.T) {
	up := &fakeUpstream{}
	r := newTestRecords(t, up, nil)
	cfg := GetRecordConfig{RecordID: oppID, Fields: []string{"Opportunity.Name"}}

	snap, err := r.GetRecord(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StateError, snap.State)
	require.NotNil(t, snap.Error)
	assert.Equal(t, 404, snap.Error.Status)

	snap, err = r.GetRecord(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StateError, snap.State)
	assert.EqualValues(t, 1, up.recordCalls.Load(), "stored 404 answers until it expires")
}

func TestGetRecord_ExpiredErrorRefetches(t *testing.T) {
	up := &fakeUpstream{}
	r := newTestRecords(t, up, nil)
	cfg := GetRecordConfig{RecordID: oppID, Fields: []string{"Opportunity.Name"}}

	_, err := r.GetRecord(context.Background(), cfg)
	require.NoError(t, err)

	up.setRecords(opportunity(1, map[string]any{"Name": "Back"}))
	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	snap, err := r.GetRecord(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StateFulfilled, snap.State)
	assert.EqualValues(t, 2, up.recordCalls.Load())
}

func TestGetRecord_ConcurrentRequestsShareFetch(t *testing.T) {
	up := &fakeUpstream{block: make(chan struct{})}
	up.setRecords(opportunity(3, map[string]any{"Name": "Deal"}))
	r := newTestRecords(t, up, nil)
	cfg := GetRecordConfig{RecordID: oppID, Fields: []string{"Opportunity.Name"}}

	var wg sync.WaitGroup
	for n := 0; n < 5; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := r.GetRecord(context.Background(), cfg)
			assert.NoError(t, err)
			assert.Equal(t, ingest.StateFulfilled, snap.State)
		}()
	}

	require.Eventually(t, func() bool { return up.recordCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(up.block)
	wg.Wait()

	assert.EqualValues(t, 1, up.recordCalls.Load())
}

func TestGetRecord_CallerTimeoutDoesNotFailSharedFetch(t *testing.T) {
	up := &fakeUpstream{block: make(chan struct{})}
	up.setRecords(opportunity(3, map[string]any{"Name": "Deal"}))
	r := newTestRecords(t, up, nil)
	cfg := GetRecordConfig{RecordID: oppID, Fields: []string{"Opportunity.Name"}}

	impatient := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := r.GetRecord(ctx, cfg)
		impatient <- err
	}()
	require.Eventually(t, func() bool { return up.recordCalls.Load() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		snap ingest.Snapshot
		err  error
	}
	patient := make(chan outcome, 1)
	go func() {
		snap, err := r.GetRecord(context.Background(), cfg)
		patient <- outcome{snap, err}
	}()

	err := <-impatient
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(up.block)
	got := <-patient
	require.NoError(t, got.err)
	assert.Equal(t, ingest.StateFulfilled, got.snap.State)
	assert.Equal(t, "Deal", got.snap.Data.Fields["Name"].Value)
	assert.EqualValues(t, 1, up.recordCalls.Load())
}

func TestGetRecord_FetchTimeoutBoundsSharedFetch(t *testing.T) {
	up := &fakeUpstream{block: make(chan struct{})}
	defer close(up.block)
	up.setRecords(opportunity(3, map[string]any{"Name": "Deal"}))
	r := NewRecords(newTestIngestor(t), up, nil, time.Minute, 20*time.Millisecond, nil, discardLogger())

	_, err := r.GetRecord(context.Background(), GetRecordConfig{RecordID: oppID, Fields: []string{"Opportunity.Name"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetRecord_ConflictDispatchesRefetch(t *testing.T) {
	up := &fakeUpstream{}
	d := &recordingDispatcher{}
	r := newTestRecords(t, up, d)

	up.setRecords(opportunity(2, map[string]any{"Name": "Deal", "Amount": 10}))
	_, err := r.GetRecord(context.Background(), GetRecordConfig{
		RecordID: oppID, Fields: []string{"Opportunity.Name", "Opportunity.Amount"},
	})
	require.NoError(t, err)
	assert.Empty(t, d.all())

	up.setRecords(opportunity(3, map[string]any{"Name": "Deal v3", "StageName": "Won"}))
	snap, err := r.GetRecord(context.Background(), GetRecordConfig{
		RecordID: oppID, Fields: []string{"Opportunity.StageName"},
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StateFulfilled, snap.State)

	intents := d.all()
	require.Len(t, intents, 1)
	assert.Equal(t, oppID, intents[0].RecordID)
	assert.Equal(t, []string{"Opportunity.Amount"}, intents[0].Fields)

	pending := r.ingestor.Read(snap.Key, []string{"Opportunity.Amount"}, nil)
	assert.Equal(t, ingest.StatePending, pending.State)
	assert.Equal(t, []string{"Opportunity.Amount"}, pending.PendingFields)

	up.setRecords(opportunity(3, map[string]any{"Amount": 12}))
	snap, err = r.GetRecord(context.Background(), GetRecordConfig{
		RecordID: oppID, Fields: []string{"Opportunity.Amount"},
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StateFulfilled, snap.State, "pending fields trigger a foreground fetch")
	assert.Equal(t, 12, snap.Data.Fields["Amount"].Value)
}

func TestFlightKey_OrderInsensitive(t *testing.T) {
	a := flightKey(oppID, GetRecordConfig{Fields: []string{"X.B", "X.A"}})
	b := flightKey(oppID, GetRecordConfig{Fields: []string{"X.A", "X.B"}})
	c := flightKey(oppID, GetRecordConfig{OptionalFields: []string{"X.A", "X.B"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

var _ Dispatcher = (*Refetcher)(nil)
