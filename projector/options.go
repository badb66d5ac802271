package projector

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// ErrInvalidPollInterval is returned when the poll interval is not positive.
var ErrInvalidPollInterval = errors.New("poll interval must be positive")

// Option defines a functional option for configuring a Projector.
type Option func(*Projector) error

// WithLimit sets the batch size of each RunOnce. Without it the Provider's default limit applies.
func WithLimit(limit int) Option {
	return func(p *Projector) error {
		if limit <= 0 {
			return eventstore.ErrInvalidLimit
		}

		p.limit = limit

		return nil
	}
}

// WithPollInterval sets how long Run idles after an empty batch or a failed run.
func WithPollInterval(interval time.Duration) Option {
	return func(p *Projector) error {
		if interval <= 0 {
			return ErrInvalidPollInterval
		}

		p.pollInterval = interval

		return nil
	}
}

// WithErrorObserver sets the observer of errors inside Run. It replaces the Provider's Settings().OnError.
func WithErrorObserver(observer eventstore.ErrorObserver) Option {
	return func(p *Projector) error {
		p.onError = observer
		return nil
	}
}

// WithLogger sets the logger for the Projector.
//
// Debug level: empty batches
// Info level: dispatched batches, bookmark changes
// Error level: failing runs.
func WithLogger(logger eventstore.Logger) Option {
	return func(p *Projector) error {
		p.observer.SetLogger(logger)
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Projector.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(p *Projector) error {
		p.observer.SetContextualLogger(logger)
		return nil
	}
}

// WithMetrics sets the metrics collector for the Projector.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(p *Projector) error {
		p.observer.SetMetrics(collector)
		return nil
	}
}

// WithTracing sets the tracing collector for the Projector.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(p *Projector) error {
		p.observer.SetTracing(collector)
		return nil
	}
}
