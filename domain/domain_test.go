package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/spies"
)

type ordersDomain = domain.Domain[fixtures.OrderEvent, fixtures.Order, fixtures.OrderCommand]

type unknownCommand struct{}

func (unknownCommand) CommandType() string { return "Unknown" }

func givenProviderSpy(t *testing.T) *spies.ProviderSpy {
	provider, err := memoryengine.NewProvider()
	require.NoError(t, err, "error in arranging test data")

	return spies.NewProviderSpy(provider)
}

func givenOrdersDomain(t *testing.T, provider eventstore.Provider, opts ...domain.Option) *ordersDomain {
	return givenOrdersDomainWithHandlers(t, provider, fixtures.OrderHandlers(time.Now), opts...)
}

func givenOrdersDomainWithHandlers(
	t *testing.T,
	provider eventstore.Provider,
	handlers map[string]domain.CommandHandler[fixtures.OrderEvent, fixtures.Order, fixtures.OrderCommand],
	opts ...domain.Option,
) *ordersDomain {

	orders, err := domain.New(
		domain.Options[fixtures.OrderEvent, fixtures.Order]{
			Stream:   fixtures.OrdersStream,
			Provider: provider,
			Codec:    fixtures.NewOrderCodec(),
			Fold:     fixtures.FoldOrder,
		},
		handlers,
		opts...,
	)
	require.NoError(t, err, "error in arranging test data")

	return orders
}

func Test_GetAggregate_Cache_Hit_Reads_Only_The_Gap_And_Conflicts_Are_Rejected(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	cache := domain.NewMapCache[fixtures.Order]()
	orders := givenOrdersDomain(t, provider, domain.WithCache(cache))

	// arrange
	first := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, "A", time.Now())

	// act
	v1, err := orders.GetAggregate(ctx, "A")

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(1), v1.Version)
	assert.Equal(t, "A", v1.AggregateID)
	assert.Equal(t, fixtures.StatusPlaced, v1.State.Status)
	assert.Equal(t, "customer-A", v1.State.CustomerID)

	// arrange
	fixtures.GivenEventsWereAppended(t, ctx, provider, fixtures.OrdersStream, "A", 2, fixtures.FixtureItemAdded(t, "A", 2, time.Now()))
	provider.Reset()

	// act
	v2, err := orders.GetAggregate(ctx, "A")

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(2), v2.Version)
	assert.Equal(t, fixtures.StatusPlaced, v2.State.Status)
	assert.Equal(t, 2, v2.State.ItemCount)

	reads := provider.ReadCalls()
	require.Len(t, reads, 1)
	assert.True(t, reads[0].Options.HasAfterPosition)
	assert.Equal(t, first.Position, reads[0].Options.AfterPosition)

	// act
	_, conflictErr := provider.Append(ctx, fixtures.OrdersStream, "A", 1, fixtures.FixtureOrderPlaced(t, "A", time.Now()))

	// assert
	assert.ErrorIs(t, conflictErr, eventstore.ErrVersionConflict)

	history, err := provider.GetEventsFor(ctx, fixtures.OrdersStream, "A")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func Test_GetAggregate_Without_Events_Returns_Version_Zero_And_Is_Not_Cached(t *testing.T) {
	// setup
	provider := givenProviderSpy(t)
	cache := domain.NewMapCache[fixtures.Order]()
	orders := givenOrdersDomain(t, provider, domain.WithCache(cache))

	// act
	aggregate, err := orders.GetAggregate(t.Context(), "unknown")

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(0), aggregate.Version)
	assert.Equal(t, "unknown", aggregate.AggregateID)
	assert.Equal(t, fixtures.StatusNew, aggregate.State.Status)
	assert.Equal(t, 0, cache.Len())
}

func Test_GetAggregate_Uses_Initial_State(t *testing.T) {
	// setup
	provider := givenProviderSpy(t)
	orders, err := domain.New(
		domain.Options[fixtures.OrderEvent, fixtures.Order]{
			Stream:   fixtures.OrdersStream,
			Provider: provider,
			Codec:    fixtures.NewOrderCodec(),
			Initial:  func() fixtures.Order { return fixtures.Order{CustomerID: "anonymous"} },
			Fold:     fixtures.FoldOrder,
		},
		fixtures.OrderHandlers(time.Now),
	)
	require.NoError(t, err)

	// act
	aggregate, err := orders.GetAggregate(t.Context(), "o-1")

	// assert
	require.NoError(t, err)
	assert.Equal(t, "anonymous", aggregate.State.CustomerID)
}

func Test_GetAggregate_Without_Cache_Always_Reads_Full_History(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider)
	placed := fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", time.Now())

	// act
	first, firstErr := orders.GetAggregate(ctx, "o-1")
	second, secondErr := orders.GetAggregate(ctx, "o-1")

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, first, second)
	assert.Equal(t, placed.Position, second.State.LastPosition)
	assert.Len(t, provider.ReadCalls(), 2)
	assert.Equal(t, 0, provider.IncrementalReadCount())
}

func Test_GetAggregate_Cache_Hit_Without_New_Events_Returns_Cached_Aggregate(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider, domain.WithCache(domain.NewMapCache[fixtures.Order]()))
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", time.Now())

	// act
	first, firstErr := orders.GetAggregate(ctx, "o-1")
	second, secondErr := orders.GetAggregate(ctx, "o-1")

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.IncrementalReadCount())
}

func Test_GetAggregate_Reflects_Appends_Of_Other_Writers_Exactly_Once(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	reader := givenOrdersDomain(t, provider, domain.WithCache(domain.NewMapCache[fixtures.Order]()))
	writer := givenOrdersDomain(t, provider, domain.WithCache(domain.NewMapCache[fixtures.Order]()))

	// arrange
	_, err := writer.Execute(ctx, "o-1", fixtures.PlaceOrder{CustomerID: "c-1"})
	require.NoError(t, err)

	cachedBefore, err := reader.GetAggregate(ctx, "o-1")
	require.NoError(t, err)

	_, err = writer.Execute(ctx, "o-1", fixtures.AddItem{SKU: "sku-1", Quantity: 3})
	require.NoError(t, err)
	_, err = writer.Execute(ctx, "o-1", fixtures.AddItem{SKU: "sku-2", Quantity: 4})
	require.NoError(t, err)

	// act
	refreshed, refreshedErr := reader.GetAggregate(ctx, "o-1")
	again, againErr := reader.GetAggregate(ctx, "o-1")

	// assert
	require.NoError(t, refreshedErr)
	require.NoError(t, againErr)
	assert.Equal(t, eventstore.Version(1), cachedBefore.Version)
	assert.Equal(t, eventstore.Version(3), refreshed.Version)
	assert.Equal(t, 7, refreshed.State.ItemCount)
	assert.Equal(t, 2, refreshed.State.Lines)
	assert.Equal(t, refreshed, again)
}

// rereadingProvider ignores AfterPosition like an out-of-order read that surfaces already folded events.
type rereadingProvider struct {
	eventstore.Provider
}

func (p rereadingProvider) GetEventsFor(
	ctx context.Context,
	stream string,
	aggregateID string,
	_ ...eventstore.ReadOption,
) (eventstore.StoredEvents, error) {

	return p.Provider.GetEventsFor(ctx, stream, aggregateID)
}

func Test_GetAggregate_Does_Not_Fold_Reread_Events_Twice(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := rereadingProvider{Provider: givenProviderSpy(t)}
	orders := givenOrdersDomain(t, provider, domain.WithCache(domain.NewMapCache[fixtures.Order]()))

	// arrange
	fixtures.GivenEventsWereAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", 1,
		fixtures.FixtureOrderPlaced(t, "o-1", time.Now()),
		fixtures.FixtureItemAdded(t, "o-1", 5, time.Now()),
	)

	_, err := orders.GetAggregate(ctx, "o-1")
	require.NoError(t, err)

	fixtures.GivenEventsWereAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", 3, fixtures.FixtureItemAdded(t, "o-1", 1, time.Now()))

	// act
	aggregate, err := orders.GetAggregate(ctx, "o-1")

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(3), aggregate.Version)
	assert.Equal(t, 6, aggregate.State.ItemCount)
}

func Test_GetAggregate_Rejects_Empty_AggregateID(t *testing.T) {
	orders := givenOrdersDomain(t, givenProviderSpy(t))

	_, err := orders.GetAggregate(t.Context(), "")

	assert.ErrorIs(t, err, eventstore.ErrEmptyAggregateID)
}

func Test_Execute_Appends_Events_And_Updates_Cache(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	cache := domain.NewMapCache[fixtures.Order]()
	orders := givenOrdersDomain(t, provider, domain.WithCache(cache))

	// act
	placed, placeErr := orders.Execute(ctx, "o-1", fixtures.PlaceOrder{CustomerID: "c-1"})
	added, addErr := orders.Execute(ctx, "o-1", fixtures.AddItem{SKU: "sku-1", Quantity: 2})

	// assert
	require.NoError(t, placeErr)
	require.NoError(t, addErr)
	assert.Equal(t, eventstore.Version(1), placed.Version)
	assert.Equal(t, "c-1", placed.State.CustomerID)
	assert.Equal(t, eventstore.Version(2), added.Version)
	assert.Equal(t, 2, added.State.ItemCount)

	history, err := provider.GetEventsFor(ctx, fixtures.OrdersStream, "o-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	entry, hit := cache.Get("o-1")
	require.True(t, hit)
	assert.Equal(t, added, entry.Aggregate)
	assert.Equal(t, history[1].Position, entry.Position)
	assert.Equal(t, history[1].Position, added.State.LastPosition)
}

func Test_Execute_Propagates_Handler_Errors_Without_Appending(t *testing.T) {
	// setup
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider)

	// act
	_, err := orders.Execute(t.Context(), "o-1", fixtures.AddItem{SKU: "sku-1", Quantity: 1})

	// assert
	assert.ErrorIs(t, err, fixtures.ErrOrderNotOpen)
	assert.Equal(t, 0, provider.AppendCount())
}

func Test_Execute_Without_Resulting_Events_Is_A_NoOp(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	orders := givenOrdersDomain(t, provider)

	_, err := orders.Execute(ctx, "o-1", fixtures.PlaceOrder{CustomerID: "c-1"})
	require.NoError(t, err)
	shipped, err := orders.Execute(ctx, "o-1", fixtures.ShipOrder{})
	require.NoError(t, err)
	provider.Reset()

	// act
	again, err := orders.Execute(ctx, "o-1", fixtures.ShipOrder{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, shipped, again)
	assert.Equal(t, 0, provider.AppendCount())
}

func Test_Execute_Rejects_Unknown_Commands(t *testing.T) {
	orders := givenOrdersDomain(t, givenProviderSpy(t))

	_, err := orders.Execute(t.Context(), "o-1", unknownCommand{})

	assert.ErrorIs(t, err, domain.ErrUnknownCommand)
	assert.ErrorContains(t, err, "Unknown")
}

func Test_Execute_Propagates_Version_Conflicts_Without_Retrying(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenProviderSpy(t)
	handlers := fixtures.OrderHandlers(time.Now)
	placeOrder := handlers[fixtures.PlaceOrder{}.CommandType()]

	handlers[fixtures.PlaceOrder{}.CommandType()] = func(
		ctx context.Context,
		cmd fixtures.OrderCommand,
		order domain.Aggregate[fixtures.Order],
	) ([]fixtures.OrderEvent, error) {
		// a concurrent writer wins the race between load and append
		fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, order.AggregateID, time.Now())

		return placeOrder(ctx, cmd, order)
	}

	orders := givenOrdersDomainWithHandlers(t, provider, handlers)

	// act
	_, err := orders.Execute(ctx, "o-1", fixtures.PlaceOrder{CustomerID: "c-1"})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrVersionConflict)
	assert.Equal(t, 2, provider.AppendCount())
}

func Test_Typed_Handler_Rejects_Other_Command_Types(t *testing.T) {
	// setup
	handlers := fixtures.OrderHandlers(time.Now)
	handlers[unknownCommand{}.CommandType()] = handlers[fixtures.PlaceOrder{}.CommandType()]
	orders := givenOrdersDomainWithHandlers(t, givenProviderSpy(t), handlers)

	// act
	_, err := orders.Execute(t.Context(), "o-1", unknownCommand{})

	// assert
	assert.ErrorIs(t, err, domain.ErrCommandTypeMismatch)
}

func Test_New_Validates_Options(t *testing.T) {
	provider := givenProviderSpy(t)
	codec := fixtures.NewOrderCodec()
	handlers := fixtures.OrderHandlers(time.Now)

	tests := []struct {
		name        string
		options     domain.Options[fixtures.OrderEvent, fixtures.Order]
		opts        []domain.Option
		expectedErr error
	}{
		{
			name:        "empty stream",
			options:     domain.Options[fixtures.OrderEvent, fixtures.Order]{Provider: provider, Codec: codec, Fold: fixtures.FoldOrder},
			expectedErr: eventstore.ErrEmptyStream,
		},
		{
			name:        "nil provider",
			options:     domain.Options[fixtures.OrderEvent, fixtures.Order]{Stream: fixtures.OrdersStream, Codec: codec, Fold: fixtures.FoldOrder},
			expectedErr: domain.ErrNilProvider,
		},
		{
			name:        "nil codec",
			options:     domain.Options[fixtures.OrderEvent, fixtures.Order]{Stream: fixtures.OrdersStream, Provider: provider, Fold: fixtures.FoldOrder},
			expectedErr: domain.ErrNilCodec,
		},
		{
			name:        "nil fold",
			options:     domain.Options[fixtures.OrderEvent, fixtures.Order]{Stream: fixtures.OrdersStream, Provider: provider, Codec: codec},
			expectedErr: domain.ErrNilFold,
		},
		{
			name:        "cache of another state type",
			options:     domain.Options[fixtures.OrderEvent, fixtures.Order]{Stream: fixtures.OrdersStream, Provider: provider, Codec: codec, Fold: fixtures.FoldOrder},
			opts:        []domain.Option{domain.WithCache(domain.NewMapCache[string]())},
			expectedErr: domain.ErrCacheTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.New(tt.options, handlers, tt.opts...)
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_Domain_Observability(t *testing.T) {
	// setup
	ctx := t.Context()
	metrics := spies.NewMetricsCollectorSpy()
	tracing := spies.NewTracingCollectorSpy()
	contextualLogger := spies.NewContextualLoggerSpy()
	orders := givenOrdersDomain(t, givenProviderSpy(t),
		domain.WithMetrics(metrics),
		domain.WithTracing(tracing),
		domain.WithContextualLogger(contextualLogger),
	)

	// act
	_, err := orders.Execute(ctx, "o-1", fixtures.PlaceOrder{CustomerID: "c-1"})
	require.NoError(t, err)
	_, handlerErr := orders.Execute(ctx, "o-1", fixtures.CancelOrder{})
	require.NoError(t, handlerErr)
	_, failedErr := orders.Execute(ctx, "o-1", fixtures.AddItem{SKU: "sku-1", Quantity: 1})

	// assert
	assert.True(t, errors.Is(failedErr, fixtures.ErrOrderNotOpen))
	assert.True(t, metrics.HasValueRecordForMetric("domain_execute_events_total").WithValue(1).Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("domain_errors_total").WithErrorType("handler_failed").Assert())
	assert.True(t, tracing.HasSpanRecordForName("domain.execute").WithStartAttribute("command_type", "PlaceOrder").WithStatus("success").Assert())
	assert.True(t, tracing.HasSpanRecordForName("domain.load").WithStatus("success").Assert())
	assert.NotZero(t, contextualLogger.TotalRecordCount())
}
