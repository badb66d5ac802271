package instrument

import (
	"context"
	"strconv"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// Operation tracks the span and the metrics of one running operation, e.g., an append or a projector batch.
//
// Exactly one of Success, Conflict or Failure should be called to finish it.
type Operation struct {
	observer *Observer
	ctx      context.Context
	name     string
	span     eventstore.SpanContext
	started  time.Time
}

// Start begins an Operation and returns the context that carries its span.
func (o *Observer) Start(ctx context.Context, operation string, attrs map[string]string) (*Operation, context.Context) {
	spanAttrs := map[string]string{AttrOperation: operation}
	for k, v := range attrs {
		spanAttrs[k] = v
	}

	var span eventstore.SpanContext
	if o.tracingCollector != nil {
		ctx, span = o.tracingCollector.StartSpan(ctx, o.SpanName(operation), spanAttrs)
	}

	return &Operation{
		observer: o,
		ctx:      ctx,
		name:     operation,
		span:     span,
		started:  time.Now(),
	}, ctx
}

// Duration returns the time elapsed since Start.
func (op *Operation) Duration() time.Duration {
	return time.Since(op.started)
}

// Success records the duration and the number of events the operation handled, and finishes the span.
func (op *Operation) Success(eventCount int) time.Duration {
	duration := op.Duration()
	labels := map[string]string{AttrOperation: op.name, AttrStatus: StatusSuccess}

	op.observer.RecordDuration(op.ctx, op.name+"_duration_seconds", duration, labels)
	op.observer.RecordValue(op.ctx, op.name+"_events_total", float64(eventCount), labels)

	op.finish(StatusSuccess, map[string]string{
		AttrEventCount: strconv.Itoa(eventCount),
		AttrDurationMS: FormatDuration(duration),
	})

	return duration
}

// Conflict records a version conflict and finishes the span.
func (op *Operation) Conflict() time.Duration {
	duration := op.Duration()
	labels := map[string]string{AttrOperation: op.name, AttrStatus: StatusConflict}

	op.observer.RecordDuration(op.ctx, op.name+"_duration_seconds", duration, labels)
	op.observer.IncrementCounter(op.ctx, "concurrency_conflicts_total", map[string]string{
		AttrOperation:   op.name,
		"conflict_type": "version",
	})

	op.finish(StatusConflict, map[string]string{AttrDurationMS: FormatDuration(duration)})

	return duration
}

// Failure records an error of the given type and finishes the span.
func (op *Operation) Failure(errorType string) time.Duration {
	duration := op.Duration()

	op.observer.RecordDuration(op.ctx, op.name+"_duration_seconds", duration, map[string]string{
		AttrOperation: op.name,
		AttrStatus:    StatusError,
	})
	op.observer.IncrementCounter(op.ctx, "errors_total", map[string]string{
		AttrOperation: op.name,
		AttrStatus:    StatusError,
		AttrErrorType: errorType,
	})

	op.finish(StatusError, map[string]string{
		AttrErrorType:  errorType,
		AttrDurationMS: FormatDuration(duration),
	})

	return duration
}

func (op *Operation) finish(status string, attrs map[string]string) {
	if op.observer.tracingCollector == nil || op.span == nil {
		return
	}

	op.span.SetStatus(status)
	for k, v := range attrs {
		op.span.AddAttribute(k, v)
	}

	op.observer.tracingCollector.FinishSpan(op.span, status, attrs)
}
