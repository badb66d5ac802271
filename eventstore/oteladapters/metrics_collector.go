package oteladapters

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

const totalSuffix = "_total"

// MetricsCollector implements eventstore.MetricsCollector using the OpenTelemetry metrics API.
// It maps the metric calls to OpenTelemetry instruments, created on first use:
//   - RecordDuration -> Float64Histogram in seconds
//   - IncrementCounter -> Int64Counter
//   - RecordValue -> Float64Counter for names ending in "_total" (e.g., event counts), else Float64Gauge
//
// It is safe for concurrent use, so one collector can serve several projectors.
type MetricsCollector struct {
	meter metric.Meter

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
	sums       map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
}

// NewMetricsCollector creates a new OpenTelemetry metrics collector.
// The meter should be created from your OpenTelemetry MeterProvider.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{
		meter:      meter,
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
		sums:       make(map[string]metric.Float64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

// RecordDuration records a duration in seconds.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

// RecordDurationContext records a duration in seconds with context for exemplar and trace correlation.
func (m *MetricsCollector) RecordDurationContext(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	histogram := m.histogram(metricName)
	if histogram == nil {
		return
	}

	histogram.Record(ctx, duration.Seconds(), withLabels(labels))
}

// IncrementCounter increments a counter by one.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

// IncrementCounterContext increments a counter by one with context.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter := m.counter(metricName)
	if counter == nil {
		return
	}

	counter.Add(ctx, 1, withLabels(labels))
}

// RecordValue adds value to a "_total" sum or sets a gauge.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

// RecordValueContext adds value to a "_total" sum or sets a gauge, with context.
func (m *MetricsCollector) RecordValueContext(ctx context.Context, metricName string, value float64, labels map[string]string) {
	if strings.HasSuffix(metricName, totalSuffix) {
		if sum := m.sum(metricName); sum != nil && value >= 0 {
			sum.Add(ctx, value, withLabels(labels))
		}

		return
	}

	if gauge := m.gauge(metricName); gauge != nil {
		gauge.Record(ctx, value, withLabels(labels))
	}
}

func (m *MetricsCollector) histogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}

	histogram, err := m.meter.Float64Histogram(name, metric.WithDescription(describe(name)), metric.WithUnit("s"))
	if err != nil {
		return nil
	}

	m.histograms[name] = histogram

	return histogram
}

func (m *MetricsCollector) counter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[name]; exists {
		return counter
	}

	counter, err := m.meter.Int64Counter(name, metric.WithDescription(describe(name)))
	if err != nil {
		return nil
	}

	m.counters[name] = counter

	return counter
}

func (m *MetricsCollector) sum(name string) metric.Float64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sum, exists := m.sums[name]; exists {
		return sum
	}

	sum, err := m.meter.Float64Counter(name, metric.WithDescription(describe(name)))
	if err != nil {
		return nil
	}

	m.sums[name] = sum

	return sum
}

func (m *MetricsCollector) gauge(name string) metric.Float64Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[name]; exists {
		return gauge
	}

	gauge, err := m.meter.Float64Gauge(name, metric.WithDescription(describe(name)))
	if err != nil {
		return nil
	}

	m.gauges[name] = gauge

	return gauge
}

// describe turns "projector_run_once_duration_seconds" into "projector: run once duration seconds".
func describe(name string) string {
	component, rest, found := strings.Cut(name, "_")
	if !found {
		return name
	}

	return component + ": " + strings.ReplaceAll(rest, "_", " ")
}

func withLabels(labels map[string]string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return metric.WithAttributes(attrs...)
}

var _ eventstore.MetricsCollector = (*MetricsCollector)(nil)
var _ eventstore.ContextualMetricsCollector = (*MetricsCollector)(nil)
