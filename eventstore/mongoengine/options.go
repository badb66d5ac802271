package mongoengine

import (
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// Option defines a functional option for configuring the Provider.
type Option func(*Provider) error

// WithEventsCollectionName sets the name of the events collection.
func WithEventsCollectionName(name string) Option {
	return func(p *Provider) error {
		if name == "" {
			return eventstore.ErrEmptyTableName
		}

		p.eventsName = name

		return nil
	}
}

// WithBookmarksCollectionName sets the name of the bookmarks collection.
func WithBookmarksCollectionName(name string) Option {
	return func(p *Provider) error {
		if name == "" {
			return eventstore.ErrEmptyTableName
		}

		p.bookmarksName = name

		return nil
	}
}

// WithCountersCollectionName sets the name of the collection holding the position counter.
func WithCountersCollectionName(name string) Option {
	return func(p *Provider) error {
		if name == "" {
			return eventstore.ErrEmptyTableName
		}

		p.countersName = name

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

// WithOutOfOrderEvents switches out-of-order tolerance, which is enabled by default.
// Only disable it if a single writer appends to the store.
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
// Debug level receives every command with its duration, Info level operation summaries and conflicts.
func WithLogger(logger eventstore.Logger) Option {
	return func(p *Provider) error {
		p.observer.SetLogger(logger)
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Provider.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(p *Provider) error {
		p.observer.SetContextualLogger(logger)
		return nil
	}
}

// WithMetrics sets the metrics collector for the Provider.
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
