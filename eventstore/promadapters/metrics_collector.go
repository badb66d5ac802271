package promadapters

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

const totalSuffix = "_total"

// DefaultLabelNames are the label keys the components attach to their metrics.
var DefaultLabelNames = []string{"operation", "status", "error_type", "conflict_type"}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// MetricsCollector implements eventstore.MetricsCollector using Prometheus vectors:
//   - RecordDuration -> HistogramVec in seconds
//   - IncrementCounter -> CounterVec
//   - RecordValue -> CounterVec for names ending in "_total", else GaugeVec
//
// It is safe for concurrent use.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
	labelNames []string

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewMetricsCollector creates a new Prometheus metrics collector registering its vectors with reg.
func NewMetricsCollector(reg prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: reg,
		buckets:    defaultBuckets,
		labelNames: DefaultLabelNames,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RecordDuration observes a duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	histogram := m.histogram(metric)
	if histogram == nil {
		return
	}

	histogram.With(m.labels(labels)).Observe(duration.Seconds())
}

// IncrementCounter increments a counter by one.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	counter := m.counter(metric)
	if counter == nil {
		return
	}

	counter.With(m.labels(labels)).Inc()
}

// RecordValue adds value to a "_total" counter or sets a gauge.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	if strings.HasSuffix(metric, totalSuffix) {
		if counter := m.counter(metric); counter != nil && value >= 0 {
			counter.With(m.labels(labels)).Add(value)
		}

		return
	}

	if gauge := m.gauge(metric); gauge != nil {
		gauge.With(m.labels(labels)).Set(value)
	}
}

func (m *MetricsCollector) histogram(name string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help(name),
		Buckets:   m.buckets,
	}, m.labelNames)

	registered, ok := register(m.registerer, histogram).(*prometheus.HistogramVec)
	if !ok {
		return nil
	}

	m.histograms[name] = registered

	return registered
}

func (m *MetricsCollector) counter(name string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[name]; exists {
		return counter
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help(name),
	}, m.labelNames)

	registered, ok := register(m.registerer, counter).(*prometheus.CounterVec)
	if !ok {
		return nil
	}

	m.counters[name] = registered

	return registered
}

func (m *MetricsCollector) gauge(name string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[name]; exists {
		return gauge
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help(name),
	}, m.labelNames)

	registered, ok := register(m.registerer, gauge).(*prometheus.GaugeVec)
	if !ok {
		return nil
	}

	m.gauges[name] = registered

	return registered
}

// register returns the collector that is registered under the name afterward, or nil if the name
// is taken by an incompatible collector.
func register(reg prometheus.Registerer, collector prometheus.Collector) prometheus.Collector {
	err := reg.Register(collector)
	if err == nil {
		return collector
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		return alreadyRegistered.ExistingCollector
	}

	return nil
}

func (m *MetricsCollector) labels(labels map[string]string) prometheus.Labels {
	result := make(prometheus.Labels, len(m.labelNames))
	for _, name := range m.labelNames {
		result[name] = labels[name]
	}

	return result
}

func help(name string) string {
	component, rest, found := strings.Cut(name, "_")
	if !found {
		return name
	}

	return component + ": " + strings.ReplaceAll(rest, "_", " ")
}

var _ eventstore.MetricsCollector = (*MetricsCollector)(nil)
