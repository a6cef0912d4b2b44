package health

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckFunc reports the status of one component.
type CheckFunc func(ctx context.Context) Status

// Monitor keeps the last Status of each component. Statuses arrive either
// pushed through Update or pulled from registered checks by Check.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]CheckFunc
}

func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checks:   make(map[string]CheckFunc),
	}
}

// Update records status under name. The component name always wins and a
// zero timestamp is filled in.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.statuses[name] = status
	m.mu.Unlock()
}

func (m *Monitor) UpdateHealthy(name, message string)   { m.Update(name, NewHealthy(name, message)) }
func (m *Monitor) UpdateDegraded(name, message string)  { m.Update(name, NewDegraded(name, message)) }
func (m *Monitor) UpdateUnhealthy(name, message string) { m.Update(name, NewUnhealthy(name, message)) }

// Register adds a check evaluated by Check. It replaces an earlier check of
// the same name.
func (m *Monitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	m.checks[name] = check
	m.mu.Unlock()
}

func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[name]
	return s, ok
}

// Remove forgets both the status and the check of name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	delete(m.checks, name)
	m.mu.Unlock()
}

// Check runs the registered checks concurrently, records their results and
// returns the aggregate for systemName. No lock is held while a check runs.
func (m *Monitor) Check(ctx context.Context, systemName string) Status {
	m.mu.RLock()
	checks := maps.Clone(m.checks)
	m.mu.RUnlock()

	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			m.Update(name, check(ctx))
			return nil
		})
	}
	_ = g.Wait()
	return m.AggregateHealth(systemName)
}

// AggregateHealth folds the recorded statuses, sorted by component.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subs := slices.Collect(maps.Values(m.statuses))
	m.mu.RUnlock()

	slices.SortFunc(subs, func(a, b Status) int { return strings.Compare(a.Component, b.Component) })
	return Aggregate(systemName, subs)
}

func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}
