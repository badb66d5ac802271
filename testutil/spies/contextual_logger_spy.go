package spies

import (
	"context"
	"log/slog"
	"sync"
)

// ContextualLoggerSpy is a ContextualLogger implementation that captures log calls for testing.
type ContextualLoggerSpy struct {
	records []ContextualLogRecord
	mu      sync.Mutex
}

// ContextualLogRecord represents a captured contextual log call.
type ContextualLogRecord struct {
	Level   slog.Level
	Context context.Context
	Message string
	Args    []any
}

func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{records: make([]ContextualLogRecord, 0)}
}

func (l *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	l.record(ctx, slog.LevelDebug, msg, args)
}

func (l *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	l.record(ctx, slog.LevelInfo, msg, args)
}

func (l *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	l.record(ctx, slog.LevelWarn, msg, args)
}

func (l *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.record(ctx, slog.LevelError, msg, args)
}

func (l *ContextualLoggerSpy) record(ctx context.Context, level slog.Level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	argsCopy := make([]any, len(args))
	copy(argsCopy, args)

	l.records = append(l.records, ContextualLogRecord{Level: level, Context: ctx, Message: msg, Args: argsCopy})
}

// Records returns a copy of all captured records of the given level.
func (l *ContextualLoggerSpy) Records(level slog.Level) []ContextualLogRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := make([]ContextualLogRecord, 0)
	for _, record := range l.records {
		if record.Level == level {
			records = append(records, record)
		}
	}

	return records
}

// HasLog checks if there's a record with the given level and message.
func (l *ContextualLoggerSpy) HasLog(level slog.Level, message string) bool {
	for _, record := range l.Records(level) {
		if record.Message == message {
			return true
		}
	}

	return false
}

// TotalRecordCount returns the number of captured records of all levels.
func (l *ContextualLoggerSpy) TotalRecordCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}
