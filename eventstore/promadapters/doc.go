// Package promadapters provides a Prometheus implementation of eventstore.MetricsCollector.
//
// The Providers, domain.New and projector.New name their metrics dynamically, e.g.,
// "eventstore_append_duration_seconds" or "projector_errors_total", so the collector creates and
// registers the vectors on first use. Every vector has the same fixed label names; label keys
// outside that set are dropped and missing ones are exported as empty strings.
//
//	registry := prometheus.NewRegistry()
//	collector := promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("shop"))
//
//	provider, _ := sqlengine.NewProviderFromPGXPool(pool, sqlengine.WithMetrics(collector))
package promadapters
