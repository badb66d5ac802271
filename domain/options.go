package domain

import (
	"errors"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// ErrCacheTypeMismatch is returned by New when the cache passed to WithCache holds another aggregate state type.
var ErrCacheTypeMismatch = errors.New("cache does not hold the aggregate state type of the domain")

type settings struct {
	cache            any
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// Option defines a functional option for configuring a Domain.
type Option func(*settings) error

// WithCache enables aggregate caching. The cache is owned by the caller and may be shared between Domains.
func WithCache[A any](cache Cache[A]) Option {
	return func(s *settings) error {
		s.cache = cache
		return nil
	}
}

// WithLogger sets the logger for the Domain.
//
// Debug level: incremental refreshes of cached aggregates
// Info level: executed commands, version conflicts
// Error level: failing loads, handlers and appends.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Domain.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Domain.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Domain.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}
