package providertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

// Factory returns a Provider for one test case.
type Factory func(t *testing.T) eventstore.Provider

// Run runs the full Provider contract suite.
//
//nolint:funlen
func Run(t *testing.T, newProvider Factory) {
	t.Run("Append assigns contiguous versions and increasing positions", func(t *testing.T) {
		appendAssignsVersionsAndPositions(t, newProvider(t))
	})
	t.Run("Append stamps timestamps", func(t *testing.T) {
		appendStampsTimestamps(t, newProvider(t))
	})
	t.Run("Append continues the version sequence", func(t *testing.T) {
		appendContinuesVersions(t, newProvider(t))
	})
	t.Run("Append with a conflicting batch commits nothing", func(t *testing.T) {
		appendConflictIsAtomic(t, newProvider(t))
	})
	t.Run("Append lets exactly one concurrent writer win", func(t *testing.T) {
		appendConcurrentWritersOneWins(t, newProvider(t))
	})
	t.Run("Append rejects invalid input", func(t *testing.T) {
		appendRejectsInvalidInput(t, newProvider(t))
	})
	t.Run("GetEventsFor returns only the aggregate's history", func(t *testing.T) {
		getEventsForIsolatesAggregates(t, newProvider(t))
	})
	t.Run("GetEventsFor after a position returns only newer events", func(t *testing.T) {
		getEventsForAfterPosition(t, newProvider(t))
	})
	t.Run("GetLastEventFor returns the highest position", func(t *testing.T) {
		getLastEventFor(t, newProvider(t))
	})
	t.Run("GetEventsFrom returns ascending positions bounded by limit", func(t *testing.T) {
		getEventsFromOrderedAndBounded(t, newProvider(t))
	})
	t.Run("GetEventsFrom reads several streams", func(t *testing.T) {
		getEventsFromSeveralStreams(t, newProvider(t))
	})
	t.Run("GetEventsFrom falls back to the provider limit", func(t *testing.T) {
		getEventsFromDefaultLimit(t, newProvider(t))
	})
	t.Run("Bookmarks are created and updated", func(t *testing.T) {
		bookmarks(t, newProvider(t))
	})
	t.Run("MarkEvent and out-of-order reads", func(t *testing.T) {
		markEventAndOutOfOrderReads(t, newProvider(t))
	})
	t.Run("Reads fail on a canceled context", func(t *testing.T) {
		readsFailOnCanceledContext(t, newProvider(t))
	})
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	t.Cleanup(cancel)

	return ctx
}

// markAll flags events as processed if the provider tolerates out-of-order events,
// so reads behave like plain "position > p" reads afterwards.
func markAll(t *testing.T, ctx context.Context, provider eventstore.Provider, events eventstore.StoredEvents) {
	if !provider.Settings().HandleOutOfOrderEvents {
		return
	}

	for _, event := range events {
		require.NoError(t, provider.MarkEvent(ctx, []string{event.Stream}, event.AggregateID, event.Position))
	}
}

func positions(events eventstore.StoredEvents) []eventstore.Position {
	result := make([]eventstore.Position, 0, len(events))
	for _, event := range events {
		result = append(result, event.Position)
	}

	return result
}

func versions(events eventstore.StoredEvents) []eventstore.Version {
	result := make([]eventstore.Version, 0, len(events))
	for _, event := range events {
		result = append(result, event.Version)
	}

	return result
}

func appendAssignsVersionsAndPositions(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	now := time.Now()

	// act
	committed, err := provider.Append(ctx, stream, orderID, 1,
		fixtures.FixtureOrderPlaced(t, orderID, now),
		fixtures.FixtureItemAdded(t, orderID, 2, now),
		fixtures.FixtureItemAdded(t, orderID, 3, now),
	)

	// assert
	require.NoError(t, err)
	require.Len(t, committed, 3)
	assert.Equal(t, []eventstore.Version{1, 2, 3}, versions(committed))

	for i, event := range committed {
		assert.Equal(t, stream, event.Stream)
		assert.Equal(t, orderID, event.AggregateID)
		assert.Greater(t, event.Position, eventstore.BeginningOfTime)

		if i > 0 {
			assert.Greater(t, event.Position, committed[i-1].Position)
		}
	}

	history, err := provider.GetEventsFor(ctx, stream, orderID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, positions(committed), positions(history))
	assert.Equal(t, fixtures.OrderPlacedEventType, history[0].EventType())
	assert.Equal(t, fixtures.ItemAddedEventType, history[1].EventType())
	assert.JSONEq(t, string(committed[1].Event.PayloadJSON), string(history[1].Event.PayloadJSON))
}

func appendStampsTimestamps(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	occurredAt := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	// act
	fixtures.GivenEventsWereAppended(t, ctx, provider, stream, orderID, 1,
		fixtures.FixtureOrderPlaced(t, orderID, occurredAt),
		fixtures.FixtureItemAdded(t, orderID, 1, time.Time{}),
	)

	// assert
	history, err := provider.GetEventsFor(ctx, stream, orderID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, occurredAt.Equal(history[0].Timestamp), "expected %s, got %s", occurredAt, history[0].Timestamp)
	assert.WithinDuration(t, time.Now(), history[1].Timestamp, time.Minute)
}

func appendContinuesVersions(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	first := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, orderID, time.Now())

	// act
	committed, err := provider.Append(ctx, stream, orderID, 2, fixtures.FixtureItemAdded(t, orderID, 1, time.Now()))

	// assert
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.Equal(t, eventstore.Version(2), committed[0].Version)
	assert.Greater(t, committed[0].Position, first.Position)
}

func appendConflictIsAtomic(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, orderID, time.Now())

	// act
	_, err := provider.Append(ctx, stream, orderID, 1,
		fixtures.FixtureOrderPlaced(t, orderID, time.Now()),
		fixtures.FixtureItemAdded(t, orderID, 1, time.Now()),
	)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrVersionConflict)

	history, err := provider.GetEventsFor(ctx, stream, orderID)
	require.NoError(t, err)
	assert.Equal(t, []eventstore.Version{1}, versions(history))

	_, err = provider.Append(ctx, stream, orderID, 2, fixtures.FixtureItemAdded(t, orderID, 1, time.Now()))
	assert.NoError(t, err, "the version after the failed batch must still be free")
}

func appendConcurrentWritersOneWins(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	writers := 8
	event := fixtures.FixtureOrderPlaced(t, orderID, time.Now())

	// act
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = provider.Append(ctx, stream, orderID, 1, event)
		}()
	}
	wg.Wait()

	// assert
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}

		assert.ErrorIs(t, err, eventstore.ErrVersionConflict)
	}

	assert.Equal(t, 1, successes)

	history, err := provider.GetEventsFor(ctx, stream, orderID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func appendRejectsInvalidInput(t *testing.T, provider eventstore.Provider) {
	ctx := testContext(t)
	event := fixtures.FixtureOrderPlaced(t, "o-1", time.Now())

	_, err := provider.Append(ctx, "", "o-1", 1, event)
	assert.ErrorIs(t, err, eventstore.ErrEmptyStream)

	_, err = provider.Append(ctx, fixtures.OrdersStream, "", 1, event)
	assert.ErrorIs(t, err, eventstore.ErrEmptyAggregateID)

	_, err = provider.Append(ctx, fixtures.OrdersStream, "o-1", 1)
	assert.ErrorIs(t, err, eventstore.ErrNoEventsToAppend)

	_, err = provider.Append(ctx, fixtures.OrdersStream, "o-1", 0, event)
	assert.ErrorIs(t, err, eventstore.ErrInvalidVersion)
}

func getEventsForIsolatesAggregates(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	otherStream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	otherOrderID := fixtures.GivenUniqueID(t)

	// arrange
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, orderID, time.Now())
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, otherOrderID, time.Now())
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, otherStream, orderID, time.Now())
	fixtures.GivenEventsWereAppended(t, ctx, provider, stream, orderID, 2, fixtures.FixtureItemAdded(t, orderID, 1, time.Now()))

	// act
	history, err := provider.GetEventsFor(ctx, stream, orderID)
	unknown, unknownErr := provider.GetEventsFor(ctx, stream, fixtures.GivenUniqueID(t))

	// assert
	require.NoError(t, err)
	assert.Equal(t, []eventstore.Version{1, 2}, versions(history))
	for _, event := range history {
		assert.Equal(t, stream, event.Stream)
		assert.Equal(t, orderID, event.AggregateID)
	}

	require.NoError(t, unknownErr)
	assert.Empty(t, unknown)
}

func getEventsForAfterPosition(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)

	// arrange
	committed := fixtures.GivenEventsWereAppended(t, ctx, provider, stream, orderID, 1,
		fixtures.FixtureOrderPlaced(t, orderID, time.Now()),
		fixtures.FixtureItemAdded(t, orderID, 1, time.Now()),
		fixtures.FixtureItemAdded(t, orderID, 2, time.Now()),
	)
	markAll(t, ctx, provider, committed)

	// act
	newer, err := provider.GetEventsFor(ctx, stream, orderID, eventstore.AfterPosition(committed[0].Position))
	none, noneErr := provider.GetEventsFor(ctx, stream, orderID, eventstore.AfterPosition(committed[2].Position))
	full, fullErr := provider.GetEventsFor(ctx, stream, orderID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []eventstore.Version{2, 3}, versions(newer))

	require.NoError(t, noneErr)
	assert.Empty(t, none)

	require.NoError(t, fullErr)
	assert.Len(t, full, 3, "a full history read ignores the processed flag")
}

func getLastEventFor(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	orderID := fixtures.GivenUniqueID(t)
	otherOrderID := fixtures.GivenUniqueID(t)

	// arrange
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, orderID, time.Now())
	otherPlaced := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, otherOrderID, time.Now())
	last := fixtures.GivenEventsWereAppended(t, ctx, provider, stream, orderID, 2, fixtures.FixtureItemAdded(t, orderID, 1, time.Now()))[0]

	// act
	anyLast, anyFound, anyErr := provider.GetLastEventFor(ctx, []string{stream}, "")
	otherLast, otherFound, otherErr := provider.GetLastEventFor(ctx, []string{stream}, otherOrderID)
	_, unknownFound, unknownErr := provider.GetLastEventFor(ctx, []string{fixtures.GivenUniqueStream(t, "nothing")}, "")

	// assert
	require.NoError(t, anyErr)
	assert.True(t, anyFound)
	assert.Equal(t, last.Position, anyLast.Position)
	assert.Equal(t, orderID, anyLast.AggregateID)
	assert.Equal(t, eventstore.Version(2), anyLast.Version)

	require.NoError(t, otherErr)
	assert.True(t, otherFound)
	assert.Equal(t, otherPlaced.Position, otherLast.Position)

	require.NoError(t, unknownErr)
	assert.False(t, unknownFound)
}

func getEventsFromOrderedAndBounded(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	all := make(eventstore.StoredEvents, 0, 6)

	// arrange
	for range 3 {
		orderID := fixtures.GivenUniqueID(t)
		all = append(all, fixtures.GivenEventsWereAppended(t, ctx, provider, stream, orderID, 1,
			fixtures.FixtureOrderPlaced(t, orderID, time.Now()),
			fixtures.FixtureItemAdded(t, orderID, 1, time.Now()),
		)...)
	}
	markAll(t, ctx, provider, all)

	// act
	everything, err := provider.GetEventsFrom(ctx, []string{stream}, eventstore.BeginningOfTime, 100)
	page, pageErr := provider.GetEventsFrom(ctx, []string{stream}, all[1].Position, 2)
	tail, tailErr := provider.GetEventsFrom(ctx, []string{stream}, all[5].Position, 2)

	// assert
	require.NoError(t, err)
	assert.Equal(t, positions(all), positions(everything))

	require.NoError(t, pageErr)
	assert.Equal(t, []eventstore.Position{all[2].Position, all[3].Position}, positions(page))
	for _, event := range page {
		assert.Greater(t, event.Position, all[1].Position)
	}

	require.NoError(t, tailErr)
	assert.Empty(t, tail)
}

func getEventsFromSeveralStreams(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	orders := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	customers := fixtures.GivenUniqueStream(t, fixtures.CustomersStream)
	ignored := fixtures.GivenUniqueStream(t, "ignored")
	customerID := fixtures.GivenUniqueID(t)
	orderID := fixtures.GivenUniqueID(t)

	// arrange
	joined := fixtures.GivenEventsWereAppended(t, ctx, provider, customers, customerID, 1,
		fixtures.ToStorable(t, fixtures.CustomerJoined{CustomerID: customerID, Name: "Jane"}))
	placed := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, orders, orderID, time.Now())
	other := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, ignored, orderID, time.Now())
	markAll(t, ctx, provider, eventstore.StoredEvents{joined[0], placed, other})

	// act
	events, err := provider.GetEventsFrom(ctx, []string{orders, customers}, eventstore.BeginningOfTime, 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []eventstore.Position{joined[0].Position, placed.Position}, positions(events))
	assert.Equal(t, customers, events[0].Stream)
	assert.Equal(t, orders, events[1].Stream)

	_, err = provider.GetEventsFrom(ctx, nil, eventstore.BeginningOfTime, 0)
	assert.ErrorIs(t, err, eventstore.ErrEmptyStream)
}

func getEventsFromDefaultLimit(t *testing.T, provider eventstore.Provider) {
	limit := provider.Settings().Limit
	if limit <= 0 {
		t.Skip("provider has no default limit")
	}

	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)

	// arrange
	for range limit + 1 {
		fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, fixtures.GivenUniqueID(t), time.Now())
	}

	// act
	events, err := provider.GetEventsFrom(ctx, []string{stream}, eventstore.BeginningOfTime, 0)

	// assert
	require.NoError(t, err)
	assert.Len(t, events, limit)
}

func bookmarks(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	bookmark := fixtures.GivenUniqueStream(t, "bookmark")

	// act + assert
	position, err := provider.GetPosition(ctx, bookmark)
	require.NoError(t, err)
	assert.Equal(t, eventstore.BeginningOfTime, position)

	require.NoError(t, provider.SetPosition(ctx, bookmark, 5))
	position, err = provider.GetPosition(ctx, bookmark)
	require.NoError(t, err)
	assert.Equal(t, eventstore.Position(5), position)

	require.NoError(t, provider.SetPosition(ctx, bookmark, 9))
	position, err = provider.GetPosition(ctx, bookmark)
	require.NoError(t, err)
	assert.Equal(t, eventstore.Position(9), position)

	require.NoError(t, provider.SetPosition(ctx, bookmark, eventstore.BeginningOfTime))
	position, err = provider.GetPosition(ctx, bookmark)
	require.NoError(t, err)
	assert.Equal(t, eventstore.BeginningOfTime, position)

	assert.ErrorIs(t, provider.SetPosition(ctx, "", 1), eventstore.ErrEmptyBookmark)
	_, err = provider.GetPosition(ctx, "")
	assert.ErrorIs(t, err, eventstore.ErrEmptyBookmark)
}

func markEventAndOutOfOrderReads(t *testing.T, provider eventstore.Provider) {
	// setup
	ctx := testContext(t)
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)
	lateID := fixtures.GivenUniqueID(t)
	orderID := fixtures.GivenUniqueID(t)

	// arrange
	late := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, stream, lateID, time.Now())
	committed := fixtures.GivenEventsWereAppended(t, ctx, provider, stream, orderID, 1,
		fixtures.FixtureOrderPlaced(t, orderID, time.Now()),
		fixtures.FixtureItemAdded(t, orderID, 1, time.Now()),
	)

	// act
	markErr := provider.MarkEvent(ctx, []string{stream}, orderID, committed[0].Position)

	// assert
	if !provider.Settings().HandleOutOfOrderEvents {
		if markErr != nil {
			assert.ErrorIs(t, markErr, eventstore.ErrNotImplemented)
		}

		behind, err := provider.GetEventsFrom(ctx, []string{stream}, committed[1].Position, 0)
		require.NoError(t, err)
		assert.Empty(t, behind, "without out-of-order tolerance only newer positions are read")

		return
	}

	require.NoError(t, markErr)
	require.NoError(t, provider.MarkEvent(ctx, []string{stream}, orderID, committed[1].Position))

	behind, err := provider.GetEventsFrom(ctx, []string{stream}, committed[1].Position, 0)
	require.NoError(t, err)
	assert.Equal(t, []eventstore.Position{late.Position}, positions(behind), "unprocessed events surface behind the cursor")
	assert.False(t, behind[0].Processed)

	lateHistory, err := provider.GetEventsFor(ctx, stream, lateID, eventstore.AfterPosition(committed[1].Position))
	require.NoError(t, err)
	assert.Len(t, lateHistory, 1)

	require.NoError(t, provider.MarkEvent(ctx, []string{stream}, lateID, late.Position))

	behind, err = provider.GetEventsFrom(ctx, []string{stream}, committed[1].Position, 0)
	require.NoError(t, err)
	assert.Empty(t, behind)

	history, err := provider.GetEventsFor(ctx, stream, orderID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Processed)
}

func readsFailOnCanceledContext(t *testing.T, provider eventstore.Provider) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := provider.GetEventsFor(ctx, fixtures.OrdersStream, "o-1")
	assert.Error(t, err)

	_, err = provider.GetEventsFrom(ctx, []string{fixtures.OrdersStream}, eventstore.BeginningOfTime, 0)
	assert.Error(t, err)

	_, err = provider.Append(ctx, fixtures.OrdersStream, "o-1", 1, fixtures.FixtureOrderPlaced(t, "o-1", time.Now()))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, eventstore.ErrVersionConflict))
}
