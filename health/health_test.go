package health

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/errors"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"unix path", "failed to open /etc/recordcache/config.yaml", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\Users\\Admin\\config.json", "cannot read [PATH]"},
		{"http url", "GET https://na1.example.com/services/data failed", "GET [URL] failed"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestFromError(t *testing.T) {
	ok := FromError("upstream", nil, "reachable")
	assert.True(t, ok.IsHealthy())
	assert.True(t, ok.Healthy)
	assert.Equal(t, "reachable", ok.Message)

	transient := FromError("mirror", errors.WrapTransient(errors.ErrConnectionLost, "natsclient", "Connect", "dial nats://10.0.0.1:4222"), "")
	assert.True(t, transient.IsDegraded())
	assert.NotContains(t, transient.Message, "10.0.0.1")

	fatal := FromError("mirror", errors.WrapFatal(stderrors.New("bad credentials"), "natsclient", "Connect", "auth"), "")
	assert.True(t, fatal.IsUnhealthy())
	assert.False(t, fatal.Healthy)
}

func TestAggregate(t *testing.T) {
	assert.True(t, Aggregate("sys", nil).IsHealthy())

	healthy := NewHealthy("a", "ok")
	degraded := NewDegraded("b", "slow")
	unhealthy := NewUnhealthy("c", "down")

	assert.True(t, Aggregate("sys", []Status{healthy, healthy}).IsHealthy())
	assert.True(t, Aggregate("sys", []Status{healthy, degraded}).IsDegraded())

	agg := Aggregate("sys", []Status{healthy, degraded, unhealthy})
	assert.True(t, agg.IsUnhealthy())
	assert.Len(t, agg.SubStatuses, 3)
}

func TestStatus_WithHelpersCopy(t *testing.T) {
	base := NewHealthy("store", "ok")
	withSub := base.WithSubStatus(NewHealthy("records", "ok"))
	withMetrics := withSub.WithMetrics(&Metrics{Entries: 3})

	assert.Empty(t, base.SubStatuses)
	assert.Nil(t, withSub.Metrics)
	assert.Equal(t, 3, withMetrics.Metrics.Entries)
	assert.Len(t, withMetrics.SubStatuses, 1)
}

func TestMonitor_UpdateForcesName(t *testing.T) {
	m := NewMonitor()
	m.Update("upstream", Status{Component: "wrong", Status: StateHealthy})

	got, ok := m.Get("upstream")
	require.True(t, ok)
	assert.Equal(t, "upstream", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	_, ok = m.Get("wrong")
	assert.False(t, ok)
}

func TestMonitor_Check(t *testing.T) {
	m := NewMonitor()
	var mirrorErr error
	m.Register("upstream", func(context.Context) Status { return NewHealthy("upstream", "ok") })
	m.Register("mirror", func(context.Context) Status { return FromError("mirror", mirrorErr, "connected") })

	status := m.Check(context.Background(), "recordcache")
	assert.True(t, status.IsHealthy())
	require.Len(t, status.SubStatuses, 2)
	assert.Equal(t, "mirror", status.SubStatuses[0].Component, "sub-statuses are sorted")

	mirrorErr = errors.ErrConnectionLost
	status = m.Check(context.Background(), "recordcache")
	assert.True(t, status.IsDegraded())

	m.Remove("mirror")
	assert.True(t, m.Check(context.Background(), "recordcache").IsHealthy())
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("component-%d", i%5)
			m.UpdateDegraded(name, "busy")
			m.UpdateHealthy(name, "ok")
			_ = m.AggregateHealth("sys")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, m.Count())
	status := m.AggregateHealth("sys")
	assert.True(t, status.IsHealthy())
	assert.WithinDuration(t, time.Now(), status.Timestamp, time.Second)
}

func TestMonitor_ChecksRunConcurrently(t *testing.T) {
	m := NewMonitor()
	var arrived sync.WaitGroup
	arrived.Add(2)
	rendezvous := func(name string) CheckFunc {
		return func(ctx context.Context) Status {
			arrived.Done()
			arrived.Wait()
			return NewHealthy(name, "ok")
		}
	}
	m.Register("records", rendezvous("records"))
	m.Register("refetch", rendezvous("refetch"))

	done := make(chan Status, 1)
	go func() { done <- m.Check(context.Background(), "recordcache") }()

	select {
	case status := <-done:
		assert.True(t, status.IsHealthy())
		assert.Len(t, status.SubStatuses, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("checks ran one after another")
	}
}
