// Package metrics provides Prometheus instrumentation for dbvoir.
//
// Collectors are registered with the default registry through promauto and
// share the "dbvoir_" prefix. The daemon exposes them on /metrics:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Other packages record by importing this package and touching the exported
// variables:
//
//	metrics.ImportsTotal.WithLabelValues("imported").Inc()
//	metrics.PendingFiles.Set(3)
//
// Useful queries:
//
//	sum(rate(dbvoir_imports_total{outcome="failed"}[1h]))
//	histogram_quantile(0.95, sum(rate(dbvoir_import_duration_seconds_bucket[1d])) by (le))
package metrics
