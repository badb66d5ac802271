package domain

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3

	retryDelayMetric         = "domain_retry_delay_seconds"
	retriesMetric            = "domain_retries_total"
	maxRetriesReachedMetric  = "domain_max_retries_reached_total"
	retryLabelAttemptNumber  = "attempt_number"
	retryLabelErrorType      = "error_type"
	retryLabelFinalErrorType = "final_error_type"
	retryLabelOperation      = "operation"
)

var (
	// ErrNilMetricsCollector is returned when a nil metrics collector is provided to WithRetryMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrEmptyOperationName is returned when an empty operation name is provided to WithRetryMetrics.
	ErrEmptyOperationName = errors.New("operation name must not be empty")

	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents a function that can be retried, typically a closure around Domain.Execute.
type RetryableFunc func(ctx context.Context) error

// RetryMeta describes how a RetryOnConflict call went.
type RetryMeta struct {
	Attempts      int
	TotalDelay    time.Duration
	LastErrorType string
}

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector eventstore.MetricsCollector
	operation        string
}

// RetryOption configures retry behavior using the functional options pattern.
type RetryOption func(*retryConfig) error

// RetryOnConflict runs fn and reruns it with exponential backoff while it fails with eventstore.ErrVersionConflict.
//
// Retry Schedule (default): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms (with 30% jitter)
//
// fn must reload the aggregate on every call, which Domain.Execute does.
// All other errors, including context.DeadlineExceeded, fail fast.
func RetryOnConflict(ctx context.Context, fn RetryableFunc, options ...RetryOption) (RetryMeta, error) {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return RetryMeta{}, err
		}
	}

	meta := RetryMeta{LastErrorType: errorTypeOf(nil)}
	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec //math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			config.recordDuration(ctx, retryDelayMetric, backoffDelay, map[string]string{
				retryLabelOperation:     config.operation,
				retryLabelAttemptNumber: strconv.Itoa(attempt),
			})

			timer := time.NewTimer(backoffDelay)
			select {
			case <-timer.C:
				meta.TotalDelay += backoffDelay
			case <-ctx.Done():
				timer.Stop()
				meta.LastErrorType = errorTypeOf(ctx.Err())
				return meta, ctx.Err()
			}
		}

		meta.Attempts++
		lastErr = fn(ctx)
		meta.LastErrorType = errorTypeOf(lastErr)

		if lastErr == nil {
			return meta, nil
		}

		if !errors.Is(lastErr, eventstore.ErrVersionConflict) {
			return meta, lastErr
		}

		if attempt < config.maxAttempts-1 {
			config.incrementCounter(ctx, retriesMetric, map[string]string{
				retryLabelOperation:     config.operation,
				retryLabelAttemptNumber: strconv.Itoa(attempt + 1),
				retryLabelErrorType:     meta.LastErrorType,
			})
		}
	}

	config.incrementCounter(ctx, maxRetriesReachedMetric, map[string]string{
		retryLabelOperation:      config.operation,
		retryLabelFinalErrorType: meta.LastErrorType,
	})

	return meta, lastErr
}

func (c *retryConfig) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, duration, labels)
}

func (c *retryConfig) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

// errorTypeOf extracts a string representation of the error type for metrics labeling.
func errorTypeOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, eventstore.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context_deadline_exceeded"
	default:
		return "other"
	}
}

// WithMaxAttempts sets the maximum number of attempts, including the first one.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, baseDelay*8, etc.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter factor to prevent thundering herd problems.
// Jitter is added as a percentage of the calculated backoff delay.
// Valid range: 0.0 (no jitter) to 1.0 (100% jitter).
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryMetrics sets the metrics collector for retry instrumentation, labeled with operation.
func WithRetryMetrics(collector eventstore.MetricsCollector, operation string) RetryOption {
	return func(config *retryConfig) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		if operation == "" {
			return ErrEmptyOperationName
		}

		config.metricsCollector = collector
		config.operation = operation

		return nil
	}
}
