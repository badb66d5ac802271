package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/projector"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

func Test_Projector_Follows_The_Domain_Stream(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider)

	_, err := orders.Execute(ctx, "o-1", fixtures.PlaceOrder{CustomerID: "c-1"})
	require.NoError(t, err)
	_, err = orders.Execute(ctx, "o-1", fixtures.AddItem{SKU: "sku-1", Quantity: 2})
	require.NoError(t, err)
	_, err = orders.Execute(ctx, "o-2", fixtures.PlaceOrder{CustomerID: "c-2"})
	require.NoError(t, err)

	customers := make(map[string]string)
	quantities := make(map[string]int)

	// act
	summary, err := orders.Projector("order-summary", nil, projector.WithLimit(2))
	require.NoError(t, err)

	require.NoError(t, summary.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType, orders.On(
		func(_ context.Context, aggregateID string, event fixtures.OrderEvent, _ eventstore.EventMeta) error {
			customers[aggregateID] = event.(fixtures.OrderPlaced).CustomerID
			return nil
		})))
	require.NoError(t, summary.Handle(fixtures.OrdersStream, fixtures.ItemAddedEventType, orders.On(
		func(_ context.Context, aggregateID string, event fixtures.OrderEvent, _ eventstore.EventMeta) error {
			quantities[aggregateID] += event.(fixtures.ItemAdded).Quantity
			return nil
		})))

	count, err := summary.CatchUp(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "order-summary", summary.Bookmark())
	assert.Equal(t, []string{fixtures.OrdersStream}, summary.Streams())
	assert.Equal(t, map[string]string{"o-1": "c-1", "o-2": "c-2"}, customers)
	assert.Equal(t, map[string]int{"o-1": 2}, quantities)

	position, err := summary.GetPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, eventstore.Position(3), position)
}

func Test_Projector_Declares_Only_The_Given_Event_Types(t *testing.T) {
	// setup
	orders := givenOrdersDomain(t, givenProviderSpy(t))

	// act
	shipping, err := orders.Projector("shipping", []string{fixtures.OrderShippedEventType})
	require.NoError(t, err)

	// assert
	callback := func(context.Context, string, eventstore.StorableEvent, eventstore.EventMeta) error { return nil }
	assert.NoError(t, shipping.Handle(fixtures.OrdersStream, fixtures.OrderShippedEventType, callback))
	assert.ErrorIs(t, shipping.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType, callback), projector.ErrUnknownEventType)
}

func Test_Projector_Requires_A_Bookmark(t *testing.T) {
	orders := givenOrdersDomain(t, givenProviderSpy(t))

	_, err := orders.Projector("", nil)

	assert.ErrorIs(t, err, eventstore.ErrEmptyBookmark)
}
