package oteladapters_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/oteladapters"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

func Test_Domain_And_Provider_Share_One_Trace(t *testing.T) {
	// setup
	recorder := tracetest.NewSpanRecorder()
	tracing := oteladapters.NewTracingCollector(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("orders"),
	)
	reader := sdkmetric.NewManualReader()
	metrics := oteladapters.NewMetricsCollector(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("orders"))
	logger := &recordingLogger{minLevel: log.SeverityInfo}
	contextual := oteladapters.NewSlogBridgeLogger("orders", &recordingLoggerProvider{logger: logger})

	provider, err := memoryengine.NewProvider(
		memoryengine.WithTracing(tracing),
		memoryengine.WithMetrics(metrics),
		memoryengine.WithContextualLogger(contextual),
	)
	require.NoError(t, err)

	orders, err := domain.New(
		domain.Options[fixtures.OrderEvent, fixtures.Order]{
			Stream:   fixtures.OrdersStream,
			Provider: provider,
			Codec:    fixtures.NewOrderCodec(),
			Fold:     fixtures.FoldOrder,
		},
		fixtures.OrderHandlers(time.Now),
		domain.WithTracing(tracing),
		domain.WithMetrics(metrics),
	)
	require.NoError(t, err)

	// act
	_, err = orders.Execute(t.Context(), fixtures.GivenUniqueID(t), fixtures.PlaceOrder{CustomerID: "c-1"})

	// assert
	require.NoError(t, err)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}

	require.Contains(t, spans, "domain.execute")
	require.Contains(t, spans, "eventstore.append")
	assert.Equal(t, spans["domain.execute"].SpanContext().SpanID(), spans["eventstore.append"].Parent().SpanID())

	appendSpan := spans["eventstore.append"].SpanContext()
	var correlated bool
	for _, record := range logger.emitted() {
		if record.body == "eventstore operation: events appended" {
			correlated = record.span.SpanID() == appendSpan.SpanID()
		}
	}
	assert.True(t, correlated, "append log must carry the append span")

	appended, ok := findMetric(t, reader, "eventstore_append_events_total").Data.(metricdata.Sum[float64])
	require.True(t, ok)
	assert.InDelta(t, 1.0, appended.DataPoints[0].Value, 0.0001)
}
