package spies

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MetricsCollectorSpy is a MetricsCollector implementation that captures metrics calls for testing.
// It also implements ContextualMetricsCollector and records whether the context-aware methods were used.
type MetricsCollectorSpy struct {
	records []MetricRecord
	mu      sync.Mutex
}

// MetricKind distinguishes the three kinds of metric calls.
type MetricKind int

const (
	DurationMetric MetricKind = iota
	CounterMetric
	ValueMetric
)

// MetricRecord represents a recorded metric call.
type MetricRecord struct {
	Kind        MetricKind
	Metric      string
	Duration    time.Duration
	Value       float64
	Labels      map[string]string
	WithContext bool
}

func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{records: make([]MetricRecord, 0)}
}

func (c *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.add(MetricRecord{Kind: DurationMetric, Metric: metric, Duration: duration, Labels: maps.Clone(labels)})
}

func (c *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	c.add(MetricRecord{Kind: CounterMetric, Metric: metric, Value: 1, Labels: maps.Clone(labels)})
}

func (c *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	c.add(MetricRecord{Kind: ValueMetric, Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

func (c *MetricsCollectorSpy) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	c.add(MetricRecord{Kind: DurationMetric, Metric: metric, Duration: duration, Labels: maps.Clone(labels), WithContext: true})
}

func (c *MetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	c.add(MetricRecord{Kind: CounterMetric, Metric: metric, Value: 1, Labels: maps.Clone(labels), WithContext: true})
}

func (c *MetricsCollectorSpy) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	c.add(MetricRecord{Kind: ValueMetric, Metric: metric, Value: value, Labels: maps.Clone(labels), WithContext: true})
}

func (c *MetricsCollectorSpy) add(record MetricRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, record)
}

// Records returns a copy of all captured records.
func (c *MetricsCollectorSpy) Records() []MetricRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]MetricRecord, len(c.records))
	copy(records, c.records)

	return records
}

// Reset clears all captured metric records.
func (c *MetricsCollectorSpy) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = c.records[:0]
}

// HasDurationRecordForMetric starts a fluent chain to check a duration record.
func (c *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return c.matcher(DurationMetric, metric)
}

// HasCounterRecordForMetric starts a fluent chain to check a counter record.
func (c *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return c.matcher(CounterMetric, metric)
}

// HasValueRecordForMetric starts a fluent chain to check a value record.
func (c *MetricsCollectorSpy) HasValueRecordForMetric(metric string) *MetricRecordMatcher {
	return c.matcher(ValueMetric, metric)
}

// CountRecordsForMetric counts how many records of any kind exist for a specific metric.
func (c *MetricsCollectorSpy) CountRecordsForMetric(metric string) int {
	count := 0
	for _, record := range c.Records() {
		if record.Metric == metric {
			count++
		}
	}

	return count
}

func (c *MetricsCollectorSpy) matcher(kind MetricKind, metric string) *MetricRecordMatcher {
	candidates := make([]MetricRecord, 0)
	for _, record := range c.Records() {
		if record.Kind == kind && record.Metric == metric {
			candidates = append(candidates, record)
		}
	}

	return &MetricRecordMatcher{candidates: candidates}
}

// MetricRecordMatcher provides a fluent interface for checking metric records.
type MetricRecordMatcher struct {
	candidates []MetricRecord
}

func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.WithLabel("operation", operation)
}

func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

func (m *MetricRecordMatcher) WithErrorType(errorType string) *MetricRecordMatcher {
	return m.WithLabel("error_type", errorType)
}

// WithLabel keeps only records that carry the label key with the given value.
func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	remaining := make([]MetricRecord, 0, len(m.candidates))
	for _, record := range m.candidates {
		if record.Labels[key] == value {
			remaining = append(remaining, record)
		}
	}

	m.candidates = remaining

	return m
}

// WithValue keeps only records with the given value.
func (m *MetricRecordMatcher) WithValue(value float64) *MetricRecordMatcher {
	remaining := make([]MetricRecord, 0, len(m.candidates))
	for _, record := range m.candidates {
		if record.Value == value {
			remaining = append(remaining, record)
		}
	}

	m.candidates = remaining

	return m
}

// Assert returns true if at least one record met all conditions in the fluent chain.
func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}
