package memoryengine_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/providertest"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/spies"
)

func Test_MemoryEngine_Satisfies_Provider_Contract(t *testing.T) {
	providertest.Run(t, func(t *testing.T) eventstore.Provider {
		provider, err := memoryengine.NewProvider()
		require.NoError(t, err)

		return provider
	})
}

func Test_MemoryEngine_With_Limit_Satisfies_Provider_Contract(t *testing.T) {
	providertest.Run(t, func(t *testing.T) eventstore.Provider {
		provider, err := memoryengine.NewProvider(memoryengine.WithLimit(3))
		require.NoError(t, err)

		return provider
	})
}

func Test_MemoryEngine_MarkEvent_Is_Not_Implemented(t *testing.T) {
	provider, err := memoryengine.NewProvider()
	require.NoError(t, err)

	err = provider.MarkEvent(t.Context(), []string{fixtures.OrdersStream}, "o-1", 1)

	assert.ErrorIs(t, err, eventstore.ErrNotImplemented)
	assert.False(t, provider.Settings().HandleOutOfOrderEvents)
}

func Test_MemoryEngine_Rejects_Negative_Limit(t *testing.T) {
	_, err := memoryengine.NewProvider(memoryengine.WithLimit(-1))

	assert.ErrorIs(t, err, eventstore.ErrInvalidLimit)
}

func Test_MemoryEngine_Seed_Events_Keep_Positions_And_Versions(t *testing.T) {
	// setup
	seeded := eventstore.StoredEvents{
		{Stream: fixtures.OrdersStream, AggregateID: "o-1", Version: 1, Position: 10, Event: fixtures.FixtureOrderPlaced(t, "o-1", time.Now())},
		{Stream: fixtures.OrdersStream, AggregateID: "o-1", Version: 2, Position: 20, Event: fixtures.FixtureItemAdded(t, "o-1", 1, time.Now())},
	}

	provider, err := memoryengine.NewProvider(memoryengine.WithSeedEvents(seeded...))
	require.NoError(t, err)

	// act
	_, conflictErr := provider.Append(t.Context(), fixtures.OrdersStream, "o-1", 2, fixtures.FixtureItemAdded(t, "o-1", 1, time.Now()))
	committed, appendErr := provider.Append(t.Context(), fixtures.OrdersStream, "o-1", 3, fixtures.FixtureItemAdded(t, "o-1", 1, time.Now()))

	// assert
	assert.ErrorIs(t, conflictErr, eventstore.ErrVersionConflict)
	require.NoError(t, appendErr)
	assert.Equal(t, eventstore.Position(21), committed[0].Position)

	history, err := provider.GetEventsFor(t.Context(), fixtures.OrdersStream, "o-1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func Test_MemoryEngine_Rejects_Seed_Events_With_A_Duplicate_Version(t *testing.T) {
	// setup
	seeded := eventstore.StoredEvents{
		{Stream: fixtures.OrdersStream, AggregateID: "o-1", Version: 1, Position: 1, Event: fixtures.FixtureOrderPlaced(t, "o-1", time.Now())},
		{Stream: fixtures.OrdersStream, AggregateID: "o-2", Version: 1, Position: 2, Event: fixtures.FixtureOrderPlaced(t, "o-2", time.Now())},
		{Stream: fixtures.OrdersStream, AggregateID: "o-1", Version: 1, Position: 3, Event: fixtures.FixtureItemAdded(t, "o-1", 1, time.Now())},
	}

	// act
	provider, err := memoryengine.NewProvider(memoryengine.WithSeedEvents(seeded...))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrVersionConflict)
	assert.ErrorContains(t, err, "o-1")
	assert.Nil(t, provider)
}

func Test_MemoryEngine_Uses_Clock_For_Timestamps(t *testing.T) {
	// setup
	fakeClock := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	provider, err := memoryengine.NewProvider(memoryengine.WithClock(func() time.Time { return fakeClock }))
	require.NoError(t, err)

	// act
	committed, err := provider.Append(t.Context(), fixtures.OrdersStream, "o-1", 1, fixtures.FixtureOrderPlaced(t, "o-1", time.Time{}))

	// assert
	require.NoError(t, err)
	assert.Equal(t, fakeClock, committed[0].Timestamp)
}

func Test_MemoryEngine_Observability(t *testing.T) {
	// setup
	logHandler := spies.NewLogHandlerSpy(false)
	metrics := spies.NewMetricsCollectorSpy()
	tracing := spies.NewTracingCollectorSpy()

	provider, err := memoryengine.NewProvider(
		memoryengine.WithLogger(slog.New(logHandler)),
		memoryengine.WithMetrics(metrics),
		memoryengine.WithTracing(tracing),
	)
	require.NoError(t, err)

	// act
	fixtures.GivenOrderPlacedWasAppended(t, t.Context(), provider, fixtures.OrdersStream, "o-1", time.Now())
	_, conflictErr := provider.Append(t.Context(), fixtures.OrdersStream, "o-1", 1, fixtures.FixtureOrderPlaced(t, "o-1", time.Now()))

	// assert
	assert.ErrorIs(t, conflictErr, eventstore.ErrVersionConflict)
	assert.True(t, logHandler.HasInfoLog("eventstore operation: events appended").WithAttr("event_count").WithDurationMS().Assert())
	assert.True(t, logHandler.HasInfoLog("eventstore operation: concurrency conflict detected").Assert())
	assert.True(t, metrics.HasValueRecordForMetric("eventstore_append_events_total").WithValue(1).Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("eventstore_concurrency_conflicts_total").WithOperation("append").Assert())
	assert.True(t, tracing.HasSpanRecordForName("eventstore.append").
		WithStartAttribute("stream", fixtures.OrdersStream).
		WithStatus("success").
		Assert())
	assert.True(t, tracing.HasSpanRecordForName("eventstore.append").WithStatus("conflict").Assert())
}
