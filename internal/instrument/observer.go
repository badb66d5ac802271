package instrument

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusConflict = "conflict"

	AttrOperation   = "operation"
	AttrStatus      = "status"
	AttrErrorType   = "error_type"
	AttrEventCount  = "event_count"
	AttrDurationMS  = "duration_ms"
	AttrStream      = "stream"
	AttrAggregateID = "aggregate_id"
	AttrBookmark    = "bookmark"
	AttrPosition    = "position"
	AttrVersion     = "version"
	AttrError       = "error"
	AttrQuery       = "query"

	logMsgQueryExecuted = "executed query for: "
	logMsgOperation     = " operation: "
)

// Observer is the instrumentation handle of one component, e.g., "eventstore", "domain" or "projector".
type Observer struct {
	component        string
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// New creates an Observer without any collaborators.
func New(component string) *Observer {
	return &Observer{component: component}
}

func (o *Observer) SetLogger(logger eventstore.Logger) {
	o.logger = logger
}

func (o *Observer) SetContextualLogger(logger eventstore.ContextualLogger) {
	o.contextualLogger = logger
}

func (o *Observer) SetMetrics(collector eventstore.MetricsCollector) {
	o.metricsCollector = collector
}

func (o *Observer) SetTracing(collector eventstore.TracingCollector) {
	o.tracingCollector = collector
}

// Component returns the component name used as metric prefix and span namespace.
func (o *Observer) Component() string {
	return o.component
}

// MetricName builds the metric name "<component>_<name>".
func (o *Observer) MetricName(name string) string {
	return o.component + "_" + name
}

// SpanName builds the span name "<component>.<operation>".
func (o *Observer) SpanName(operation string) string {
	return o.component + "." + operation
}

// ToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func ToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// LogQuery logs an executed query with its duration at debug level.
func (o *Observer) LogQuery(ctx context.Context, action string, query string, duration time.Duration) {
	args := []any{AttrDurationMS, ToMilliseconds(duration), AttrQuery, query}
	msg := logMsgQueryExecuted + action

	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

// LogDebug logs diagnostic details at debug level.
func (o *Observer) LogDebug(ctx context.Context, message string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(message, args...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.DebugContext(ctx, message, args...)
	}
}

// LogOperation logs operational information at info level.
func (o *Observer) LogOperation(ctx context.Context, action string, args ...any) {
	msg := o.component + logMsgOperation + action

	if o.logger != nil {
		o.logger.Info(msg, args...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

// LogWarn logs non-critical issues like cleanup failures.
func (o *Observer) LogWarn(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{AttrError, err.Error()}, args...)

	if o.logger != nil {
		o.logger.Warn(message, allArgs...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.WarnContext(ctx, message, allArgs...)
	}
}

// LogError logs failures at error level.
func (o *Observer) LogError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{AttrError, err.Error()}, args...)

	if o.logger != nil {
		o.logger.Error(message, allArgs...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// IncrementCounter increments the counter "<component>_<name>", context-aware if the collector supports it.
func (o *Observer) IncrementCounter(ctx context.Context, name string, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextual, ok := o.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, o.MetricName(name), labels)
		return
	}

	o.metricsCollector.IncrementCounter(o.MetricName(name), labels)
}

// RecordValue records the value metric "<component>_<name>", context-aware if the collector supports it.
func (o *Observer) RecordValue(ctx context.Context, name string, value float64, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextual, ok := o.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, o.MetricName(name), value, labels)
		return
	}

	o.metricsCollector.RecordValue(o.MetricName(name), value, labels)
}

// RecordDuration records the duration metric "<component>_<name>", context-aware if the collector supports it.
func (o *Observer) RecordDuration(ctx context.Context, name string, duration time.Duration, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextual, ok := o.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, o.MetricName(name), duration, labels)
		return
	}

	o.metricsCollector.RecordDuration(o.MetricName(name), duration, labels)
}

// FormatDuration formats a duration as milliseconds for span attributes.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f", ToMilliseconds(d))
}
