package memoryengine

import (
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// Option defines a functional option for configuring the Provider.
type Option func(*Provider) error

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

// WithSeedEvents preloads the Provider with already stored events, e.g., fixtures.
// Positions of the seed events are kept; the position counter continues after the highest one.
func WithSeedEvents(events ...eventstore.StoredEvent) Option {
	return func(p *Provider) error {
		p.seed = append(p.seed, events...)
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
