package spies

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// LogHandlerSpy is a slog.Handler implementation that captures log records for testing.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy.
// Switchable to log to stdout, which can be useful for debugging tests by seeing the actual log output.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdout,
	}
}

// Handle implements slog.Handler interface.
func (h *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record.Clone())

	if h.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler interface.
func (h *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler interface.
func (h *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

// WithGroup implements slog.Handler interface.
func (h *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return h
}

// RecordCount returns the number of captured log records.
func (h *LogHandlerSpy) RecordCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.records)
}

// Records returns a copy of all captured log records.
func (h *LogHandlerSpy) Records() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := make([]slog.Record, len(h.records))
	copy(records, h.records)

	return records
}

// Reset clears all captured log records.
func (h *LogHandlerSpy) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.records[:0]
}

// HasLog starts a fluent chain to check a log record with the given level and message.
func (h *LogHandlerSpy) HasLog(level slog.Level, message string) *LogRecordMatcher {
	h.mu.Lock()
	defer h.mu.Unlock()

	candidates := make([]slog.Record, 0)
	for _, record := range h.records {
		if record.Level == level && record.Message == message {
			candidates = append(candidates, record)
		}
	}

	return &LogRecordMatcher{candidates: candidates}
}

// HasDebugLog is a shortcut for HasLog(slog.LevelDebug, message).
func (h *LogHandlerSpy) HasDebugLog(message string) *LogRecordMatcher {
	return h.HasLog(slog.LevelDebug, message)
}

// HasInfoLog is a shortcut for HasLog(slog.LevelInfo, message).
func (h *LogHandlerSpy) HasInfoLog(message string) *LogRecordMatcher {
	return h.HasLog(slog.LevelInfo, message)
}

// HasErrorLog is a shortcut for HasLog(slog.LevelError, message).
func (h *LogHandlerSpy) HasErrorLog(message string) *LogRecordMatcher {
	return h.HasLog(slog.LevelError, message)
}

// LogRecordMatcher provides a fluent interface for checking log record attributes.
type LogRecordMatcher struct {
	candidates []slog.Record
}

// WithAttr keeps only records that carry an attribute with the given key.
func (m *LogRecordMatcher) WithAttr(key string) *LogRecordMatcher {
	return m.filter(func(attr slog.Attr) bool {
		return attr.Key == key
	})
}

// WithAttrValue keeps only records that carry the attribute key with a value rendering as value.
func (m *LogRecordMatcher) WithAttrValue(key string, value string) *LogRecordMatcher {
	return m.filter(func(attr slog.Attr) bool {
		return attr.Key == key && attr.Value.String() == value
	})
}

// WithDurationMS keeps only records that carry a non-negative duration_ms attribute.
func (m *LogRecordMatcher) WithDurationMS() *LogRecordMatcher {
	return m.filter(func(attr slog.Attr) bool {
		if attr.Key != "duration_ms" {
			return false
		}

		switch attr.Value.Kind() {
		case slog.KindInt64:
			return attr.Value.Int64() >= 0
		case slog.KindFloat64:
			return attr.Value.Float64() >= 0
		default:
			return false
		}
	})
}

// Assert returns true if at least one record met all conditions in the fluent chain.
func (m *LogRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

func (m *LogRecordMatcher) filter(match func(attr slog.Attr) bool) *LogRecordMatcher {
	remaining := make([]slog.Record, 0, len(m.candidates))

	for _, record := range m.candidates {
		found := false
		record.Attrs(func(attr slog.Attr) bool {
			if match(attr) {
				found = true
				return false
			}

			return true
		})

		if found {
			remaining = append(remaining, record)
		}
	}

	m.candidates = remaining

	return m
}
