package instrument_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/spies"
)

func Test_Observer_Without_Collaborators_Is_NoOp(t *testing.T) {
	// setup
	observer := instrument.New("eventstore")

	// act + assert
	assert.NotPanics(t, func() {
		op, ctx := observer.Start(t.Context(), "append", nil)
		observer.LogQuery(ctx, "append", "INSERT ...", time.Millisecond)
		observer.LogOperation(ctx, "events appended")
		observer.LogError(ctx, "append failed", errors.New("boom"))
		op.Success(1)
	})
}

func Test_Observer_Logs_To_Logger_And_ContextualLogger(t *testing.T) {
	// setup
	logHandler := spies.NewLogHandlerSpy(false)
	contextualLogger := spies.NewContextualLoggerSpy()
	observer := instrument.New("projector")
	observer.SetLogger(slog.New(logHandler))
	observer.SetContextualLogger(contextualLogger)

	// act
	observer.LogQuery(t.Context(), "fetch", "SELECT 1", 1500*time.Microsecond)
	observer.LogOperation(t.Context(), "batch dispatched", instrument.AttrEventCount, 3)
	observer.LogError(t.Context(), "dispatch failed", errors.New("boom"), instrument.AttrBookmark, "orders-list")

	// assert
	assert.True(t, logHandler.HasDebugLog("executed query for: fetch").WithDurationMS().Assert())
	assert.True(t, logHandler.HasInfoLog("projector operation: batch dispatched").WithAttrValue(instrument.AttrEventCount, "3").Assert())
	assert.True(t, logHandler.HasErrorLog("dispatch failed").WithAttrValue(instrument.AttrError, "boom").Assert())

	assert.True(t, contextualLogger.HasLog(slog.LevelDebug, "executed query for: fetch"))
	assert.True(t, contextualLogger.HasLog(slog.LevelInfo, "projector operation: batch dispatched"))
	assert.True(t, contextualLogger.HasLog(slog.LevelError, "dispatch failed"))
}

func Test_Operation_Success_Records_Metrics_And_Span(t *testing.T) {
	// setup
	metrics := spies.NewMetricsCollectorSpy()
	tracing := spies.NewTracingCollectorSpy()
	observer := instrument.New("eventstore")
	observer.SetMetrics(metrics)
	observer.SetTracing(tracing)

	// act
	op, _ := observer.Start(t.Context(), "append", map[string]string{instrument.AttrStream: "orders"})
	op.Success(2)

	// assert
	assert.True(t, metrics.HasDurationRecordForMetric("eventstore_append_duration_seconds").
		WithOperation("append").WithStatus(instrument.StatusSuccess).Assert())
	assert.True(t, metrics.HasValueRecordForMetric("eventstore_append_events_total").WithValue(2).Assert())

	require.Len(t, metrics.Records(), 2)
	assert.True(t, metrics.Records()[0].WithContext)

	assert.True(t, tracing.HasSpanRecordForName("eventstore.append").
		WithStartAttribute(instrument.AttrStream, "orders").
		WithStartAttribute(instrument.AttrOperation, "append").
		WithStatus(instrument.StatusSuccess).
		WithEndAttribute(instrument.AttrEventCount, "2").
		Assert())
}

func Test_Operation_Conflict_And_Failure_Record_Counters(t *testing.T) {
	// setup
	metrics := spies.NewMetricsCollectorSpy()
	tracing := spies.NewTracingCollectorSpy()
	observer := instrument.New("domain")
	observer.SetMetrics(metrics)
	observer.SetTracing(tracing)

	// act
	conflicting, _ := observer.Start(t.Context(), "execute", nil)
	conflicting.Conflict()

	failing, _ := observer.Start(t.Context(), "execute", nil)
	failing.Failure("handler_failed")

	// assert
	assert.True(t, metrics.HasCounterRecordForMetric("domain_concurrency_conflicts_total").WithOperation("execute").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("domain_errors_total").WithErrorType("handler_failed").Assert())
	assert.True(t, tracing.HasSpanRecordForName("domain.execute").WithStatus(instrument.StatusConflict).Assert())
	assert.True(t, tracing.HasSpanRecordForName("domain.execute").
		WithStatus(instrument.StatusError).
		WithEndAttribute(instrument.AttrErrorType, "handler_failed").
		Assert())
}

func Test_ToMilliseconds_Rounds_To_Three_Decimals(t *testing.T) {
	assert.Equal(t, 1.5, instrument.ToMilliseconds(1500*time.Microsecond))
	assert.Equal(t, 0.001, instrument.ToMilliseconds(1234*time.Nanosecond))
}
