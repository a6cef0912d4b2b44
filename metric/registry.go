package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/recordcache/errors"
)

// MetricsRegistrar registers collectors owned by one cache, pool or adapter.
// Collectors are tracked under "owner.name" so an owner can release them.
type MetricsRegistrar interface {
	Register(owner, name string, collector prometheus.Collector) error
	Unregister(owner, name string) bool
}

// MetricsRegistry owns a private Prometheus registry holding the core record
// cache metrics, Go and process collectors, and every owner-registered collector.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu    sync.RWMutex
	owned map[string]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core metrics registered.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	r := &MetricsRegistry{
		prometheusRegistry: reg,
		Metrics:            NewMetrics(),
		owned:              make(map[string]prometheus.Collector),
	}
	r.Metrics.mustRegister(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying registry, for gathering in tests.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the shared record cache metric set.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Handler serves the registry in the Prometheus exposition format.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{Registry: r.prometheusRegistry})
}

func ownedKey(owner, name string) string {
	return owner + "." + name
}

// Register adds collector under owner.name. A second registration under the
// same key, or a descriptor clash inside Prometheus, is an invalid error.
func (r *MetricsRegistry) Register(owner, name string, collector prometheus.Collector) error {
	key := ownedKey(owner, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.owned[key]; taken {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered", key),
			"MetricsRegistry", "Register", "duplicate registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var clash prometheus.AlreadyRegisteredError
		if stderrors.As(err, &clash) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "descriptor conflict for "+key)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register "+key)
	}
	r.owned[key] = collector
	return nil
}

// Unregister removes owner.name. It reports false when nothing was registered.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	key := ownedKey(owner, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	collector, ok := r.owned[key]
	if !ok || !r.prometheusRegistry.Unregister(collector) {
		return false
	}
	delete(r.owned, key)
	return true
}

// Owned lists the registered owner.name keys in order.
func (r *MetricsRegistry) Owned() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.owned))
	for k := range r.owned {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
