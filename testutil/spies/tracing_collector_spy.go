package spies

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// SpanContextSpy implements the SpanContext interface for testing tracing functionality.
type SpanContextSpy struct {
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

func (s *SpanContextSpy) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *SpanContextSpy) AddAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attributes == nil {
		s.attributes = make(map[string]string)
	}
	s.attributes[key] = value
}

// Status returns the current status of the span.
func (s *SpanContextSpy) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Attributes returns a copy of all attributes.
func (s *SpanContextSpy) Attributes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.attributes)
}

// SpanRecord represents a recorded span for testing.
type SpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
	SpanContext     *SpanContextSpy
}

// TracingCollectorSpy is a TracingCollector implementation that captures tracing calls for testing.
type TracingCollectorSpy struct {
	spanRecords []SpanRecord
	mu          sync.Mutex
}

func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{spanRecords: make([]SpanRecord, 0)}
}

func (c *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	spanCtx := &SpanContextSpy{attributes: make(map[string]string)}
	c.spanRecords = append(c.spanRecords, SpanRecord{
		Name:            name,
		StartAttributes: maps.Clone(attrs),
		SpanContext:     spanCtx,
	})

	return ctx, spanCtx
}

func (c *TracingCollectorSpy) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	spy, ok := spanCtx.(*SpanContextSpy)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.spanRecords {
		if c.spanRecords[i].SpanContext == spy {
			c.spanRecords[i].Status = status
			c.spanRecords[i].EndAttributes = maps.Clone(attrs)
			c.spanRecords[i].Finished = true
			break
		}
	}
}

// SpanRecords returns a copy of all captured span records.
func (c *TracingCollectorSpy) SpanRecords() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]SpanRecord, len(c.spanRecords))
	copy(records, c.spanRecords)

	return records
}

// HasSpanRecordForName starts a fluent chain to check a span record.
func (c *TracingCollectorSpy) HasSpanRecordForName(name string) *SpanRecordMatcher {
	candidates := make([]SpanRecord, 0)
	for _, record := range c.SpanRecords() {
		if record.Name == name {
			candidates = append(candidates, record)
		}
	}

	return &SpanRecordMatcher{candidates: candidates}
}

// SpanRecordMatcher provides a fluent interface for checking span records.
type SpanRecordMatcher struct {
	candidates []SpanRecord
}

func (m *SpanRecordMatcher) WithStatus(status string) *SpanRecordMatcher {
	return m.filter(func(r SpanRecord) bool { return r.Finished && r.Status == status })
}

func (m *SpanRecordMatcher) WithStartAttribute(key, value string) *SpanRecordMatcher {
	return m.filter(func(r SpanRecord) bool { return r.StartAttributes[key] == value })
}

func (m *SpanRecordMatcher) WithEndAttribute(key, value string) *SpanRecordMatcher {
	return m.filter(func(r SpanRecord) bool { return r.EndAttributes[key] == value })
}

// Assert returns true if at least one span met all conditions in the fluent chain.
func (m *SpanRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

func (m *SpanRecordMatcher) filter(keep func(SpanRecord) bool) *SpanRecordMatcher {
	remaining := make([]SpanRecord, 0, len(m.candidates))
	for _, record := range m.candidates {
		if keep(record) {
			remaining = append(remaining, record)
		}
	}

	m.candidates = remaining

	return m
}
