package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// GivenUniqueID returns a fresh UUIDv7 string.
func GivenUniqueID(t testing.TB) string {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id.String()
}

// GivenUniqueStream returns a stream name that no other test uses, so tests can share one database.
func GivenUniqueStream(t testing.TB, prefix string) string {
	return prefix + "-" + GivenUniqueID(t)
}

// ToStorable serializes any event with an EventType method into a StorableEvent with empty metadata.
func ToStorable(t testing.TB, event interface{ EventType() string }) eventstore.StorableEvent {
	payloadJSON, err := jsoniter.ConfigFastest.Marshal(event)
	require.NoError(t, err, "error in arranging test data")

	var occurredAt time.Time
	if timed, ok := event.(interface{ HasOccurredAt() time.Time }); ok {
		occurredAt = timed.HasOccurredAt()
	}

	storable, err := eventstore.BuildStorableEventWithEmptyMetadata(event.EventType(), occurredAt, payloadJSON)
	require.NoError(t, err, "error in arranging test data")

	return storable
}

// FixtureOrderPlaced builds an OrderPlaced StorableEvent.
func FixtureOrderPlaced(t testing.TB, orderID string, occurredAt time.Time) eventstore.StorableEvent {
	return ToStorable(t, OrderPlaced{OrderID: orderID, CustomerID: "customer-" + orderID, OccurredAt: occurredAt})
}

// FixtureItemAdded builds an ItemAdded StorableEvent.
func FixtureItemAdded(t testing.TB, orderID string, quantity int, occurredAt time.Time) eventstore.StorableEvent {
	return ToStorable(t, ItemAdded{OrderID: orderID, SKU: "sku-1", Quantity: quantity, OccurredAt: occurredAt})
}

// GivenEventsWereAppended appends events for one aggregate starting at nextVersion and fails the test on error.
func GivenEventsWereAppended(
	t testing.TB,
	ctx context.Context,
	provider eventstore.Provider,
	stream string,
	aggregateID string,
	nextVersion eventstore.Version,
	events ...eventstore.StorableEvent,
) eventstore.StoredEvents {

	committed, err := provider.Append(ctx, stream, aggregateID, nextVersion, events...)
	require.NoError(t, err, "error in arranging test data")

	return committed
}

// GivenOrderPlacedWasAppended appends an OrderPlaced event at version 1.
func GivenOrderPlacedWasAppended(
	t testing.TB,
	ctx context.Context,
	provider eventstore.Provider,
	stream string,
	orderID string,
	occurredAt time.Time,
) eventstore.StoredEvent {

	return GivenEventsWereAppended(t, ctx, provider, stream, orderID, 1, FixtureOrderPlaced(t, orderID, occurredAt))[0]
}
