package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

func Test_Executable_Chains_Commands_Without_Rereading(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider)

	// act
	loaded, err := orders.Load(ctx, "o-1")
	require.NoError(t, err)

	placed, err := loaded.Execute(ctx, fixtures.PlaceOrder{CustomerID: "c-1"})
	require.NoError(t, err)
	added, err := placed.Execute(ctx, fixtures.AddItem{SKU: "sku-1", Quantity: 2})
	require.NoError(t, err)
	shipped, err := added.Execute(ctx, fixtures.ShipOrder{})
	require.NoError(t, err)

	// assert
	assert.Equal(t, eventstore.Version(0), loaded.Aggregate().Version)
	assert.Equal(t, eventstore.Version(3), shipped.Aggregate().Version)
	assert.Equal(t, fixtures.StatusShipped, shipped.Aggregate().State.Status)
	assert.Equal(t, 2, shipped.Aggregate().State.ItemCount)
	assert.Len(t, provider.ReadCalls(), 1)
	assert.Equal(t, 3, provider.AppendCount())
}

func Test_Executable_Conflicts_When_Another_Writer_Appended(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider, domain.WithCache(domain.NewMapCache[fixtures.Order]()))
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", time.Now())

	loaded, err := orders.Load(ctx, "o-1")
	require.NoError(t, err, "error in arranging test data")

	_, err = orders.Execute(ctx, "o-1", fixtures.AddItem{SKU: "sku-1", Quantity: 1})
	require.NoError(t, err, "error in arranging test data")

	// act
	next, err := loaded.Execute(ctx, fixtures.AddItem{SKU: "sku-2", Quantity: 1})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrVersionConflict)
	assert.Same(t, loaded, next)
	assert.Equal(t, eventstore.Version(1), next.Aggregate().Version)

	current, err := orders.GetAggregate(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(2), current.Version)
	assert.Equal(t, 1, current.State.ItemCount)
}

func Test_Executable_Keeps_Receiver_On_Handler_Error(t *testing.T) {
	ctx := t.Context()
	orders := givenOrdersDomain(t, givenProviderSpy(t))

	loaded, err := orders.Load(ctx, "o-1")
	require.NoError(t, err)

	next, err := loaded.Execute(ctx, fixtures.ShipOrder{})

	assert.ErrorIs(t, err, fixtures.ErrOrderNotOpen)
	assert.Same(t, loaded, next)
}
