package projector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/projector"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

func Test_On_Decodes_Events_For_Typed_Callbacks(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenMemoryProvider(t)
	orders := givenProjector(t, provider)
	codec := fixtures.NewOrderCodec()
	quantities := make(map[string]int)

	require.NoError(t, orders.Handle(fixtures.OrdersStream, fixtures.ItemAddedEventType, projector.On(codec,
		func(_ context.Context, aggregateID string, event fixtures.OrderEvent, _ eventstore.EventMeta) error {
			quantities[aggregateID] += event.(fixtures.ItemAdded).Quantity
			return nil
		})))

	givenThreeOrderEvents(t, provider)

	// act
	_, err := orders.RunOnce(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"o-1": 3}, quantities)
}

func Test_On_Fails_The_Dispatch_When_Decoding_Fails(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenMemoryProvider(t)
	orders := givenProjector(t, provider)
	emptyCodec := domain.NewJSONCodec[fixtures.OrderEvent]()

	require.NoError(t, orders.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType, projector.On(emptyCodec,
		func(context.Context, string, fixtures.OrderEvent, eventstore.EventMeta) error {
			return nil
		})))

	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", time.Now())

	// act
	count, err := orders.RunOnce(ctx)

	// assert
	assert.ErrorIs(t, err, projector.ErrDispatchFailed)
	assert.ErrorIs(t, err, domain.ErrUnknownEventType)
	assert.Equal(t, 0, count)
}
