// Package metric provides Prometheus-based metrics for recordcache.
//
// MetricsRegistry owns a private prometheus.Registry holding the core record
// cache metrics (ingestions, merge outcomes, refetches, upstream requests) and
// any component metrics registered through MetricsRegistrar, such as cache hit
// counters from pkg/cache and worker pool gauges from pkg/worker.
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordMerge(metric.MergePending)
//	mux.Handle("/metrics", registry.Handler())
package metric
