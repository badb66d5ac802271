package sqlengine

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// ErrUnsupportedDialect is returned for dialects other than DialectPostgres and DialectSQLite,
// and for DialectSQLite on a pgx pool.
var ErrUnsupportedDialect = errors.New("unsupported sql dialect")

// Option defines a functional option for configuring the Provider.
type Option func(*Provider) error

// WithEventsTableName sets the name of the events table.
func WithEventsTableName(tableName string) Option {
	return func(p *Provider) error {
		if tableName == "" {
			return eventstore.ErrEmptyTableName
		}

		p.eventsTable = tableName

		return nil
	}
}

// WithBookmarksTableName sets the name of the bookmarks table.
func WithBookmarksTableName(tableName string) Option {
	return func(p *Provider) error {
		if tableName == "" {
			return eventstore.ErrEmptyTableName
		}

		p.bookmarksTable = tableName

		return nil
	}
}

// WithDialect selects the SQL dialect, DialectPostgres by default.
func WithDialect(dialect string) Option {
	return func(p *Provider) error {
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return ErrUnsupportedDialect
		}

		p.dialectName = dialect

		return nil
	}
}

// WithLimit sets the default batch size of GetEventsFrom.
func WithLimit(limit int) Option {
	return func(p *Provider) error {
		if limit < 0 {
			return eventstore.ErrInvalidLimit
		}

		p.settings.Limit = limit

		return nil
	}
}

// WithErrorObserver sets the default error observer of projectors running on this Provider.
func WithErrorObserver(observer eventstore.ErrorObserver) Option {
	return func(p *Provider) error {
		p.settings.OnError = observer
		return nil
	}
}

// WithOutOfOrderEvents makes reads after a position also return events not yet marked as processed.
// Enable it when concurrent transactions may commit in another order than their positions were assigned.
func WithOutOfOrderEvents(enabled bool) Option {
	return func(p *Provider) error {
		p.settings.HandleOutOfOrderEvents = enabled
		return nil
	}
}

// WithClock replaces time.Now as the source of append timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) error {
		p.now = now
		return nil
	}
}

// WithLogger sets the logger for the Provider.
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Event counts, durations, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger eventstore.Logger) Option {
	return func(p *Provider) error {
		p.observer.SetLogger(logger)
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Provider.
// Log records then carry the trace and span of the operation when tracing is enabled.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(p *Provider) error {
		p.observer.SetContextualLogger(logger)
		return nil
	}
}

// WithMetrics sets the metrics collector for the Provider.
// It receives durations, event counts, concurrency conflicts and database errors.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(p *Provider) error {
		p.observer.SetMetrics(collector)
		return nil
	}
}

// WithTracing sets the tracing collector for the Provider.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(p *Provider) error {
		p.observer.SetTracing(collector)
		return nil
	}
}
