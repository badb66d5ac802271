package promadapters

// Option defines a functional option for configuring the MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes all metric names, e.g., "shop" turns "eventstore_append_duration_seconds"
// into "shop_eventstore_append_duration_seconds".
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// WithBuckets replaces the default latency buckets of the duration histograms.
func WithBuckets(buckets ...float64) Option {
	return func(m *MetricsCollector) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithLabelNames replaces the default label names of all vectors.
func WithLabelNames(labelNames ...string) Option {
	return func(m *MetricsCollector) {
		m.labelNames = labelNames
	}
}
