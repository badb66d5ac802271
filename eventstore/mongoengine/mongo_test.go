package mongoengine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/mongoengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/config"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/containers"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/providertest"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/spies"
)

func givenMongoClient(t *testing.T) *mongo.Client {
	t.Helper()

	client, err := config.MongoClient(t.Context(), containers.StartMongo(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client
}

func givenMongoProvider(t *testing.T, client *mongo.Client, opts ...mongoengine.Option) *mongoengine.Provider {
	t.Helper()

	provider, err := mongoengine.NewProvider(client, "eventstore", opts...)
	require.NoError(t, err)
	require.NoError(t, provider.Migrate(t.Context()))

	return provider
}

// givenUnconnectedClient returns a client that never dials, since mongo.Connect connects lazily.
func givenUnconnectedClient(t *testing.T) *mongo.Client {
	t.Helper()

	client, err := mongo.Connect(t.Context(), options.Client().ApplyURI("mongodb://localhost:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client
}

func Test_MongoDB_Satisfies_Provider_Contract(t *testing.T) {
	client := givenMongoClient(t)

	t.Run("out-of-order events", func(t *testing.T) {
		providertest.Run(t, func(t *testing.T) eventstore.Provider {
			return givenMongoProvider(t, client, mongoengine.WithLimit(4))
		})
	})

	t.Run("in-order events", func(t *testing.T) {
		providertest.Run(t, func(t *testing.T) eventstore.Provider {
			return givenMongoProvider(t, client,
				mongoengine.WithOutOfOrderEvents(false),
				mongoengine.WithEventsCollectionName("order_events"),
				mongoengine.WithBookmarksCollectionName("order_bookmarks"),
				mongoengine.WithCountersCollectionName("order_counters"),
			)
		})
	})
}

func Test_MongoDB_Conflicting_Append_Leaves_A_Position_Gap(t *testing.T) {
	// setup
	provider := givenMongoProvider(t, givenMongoClient(t))
	stream := fixtures.GivenUniqueStream(t, fixtures.OrdersStream)

	// arrange
	first := fixtures.GivenOrderPlacedWasAppended(t, t.Context(), provider, stream, "o-1", time.Now())
	_, conflictErr := provider.Append(t.Context(), stream, "o-1", 1, fixtures.FixtureOrderPlaced(t, "o-1", time.Now()))

	// act
	second := fixtures.GivenOrderPlacedWasAppended(t, t.Context(), provider, stream, "o-2", time.Now())

	// assert
	assert.ErrorIs(t, conflictErr, eventstore.ErrVersionConflict)
	assert.Equal(t, first.Position+2, second.Position)
}

func Test_MongoDB_Observability(t *testing.T) {
	// setup
	logHandler := spies.NewLogHandlerSpy(false)
	metrics := spies.NewMetricsCollectorSpy()
	tracing := spies.NewTracingCollectorSpy()

	provider := givenMongoProvider(t, givenMongoClient(t),
		mongoengine.WithLogger(slog.New(logHandler)),
		mongoengine.WithMetrics(metrics),
		mongoengine.WithTracing(tracing),
	)

	// act
	fixtures.GivenOrderPlacedWasAppended(t, t.Context(), provider, fixtures.OrdersStream, "o-1", time.Now())
	_, conflictErr := provider.Append(t.Context(), fixtures.OrdersStream, "o-1", 1, fixtures.FixtureOrderPlaced(t, "o-1", time.Now()))

	// assert
	assert.ErrorIs(t, conflictErr, eventstore.ErrVersionConflict)
	assert.True(t, logHandler.HasDebugLog("executed query for: reserve positions").WithAttr("query").Assert())
	assert.True(t, logHandler.HasInfoLog("eventstore operation: events appended").WithAttr("event_count").Assert())
	assert.True(t, logHandler.HasInfoLog("eventstore operation: concurrency conflict detected").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("eventstore_concurrency_conflicts_total").WithOperation("append").Assert())
	assert.True(t, tracing.HasSpanRecordForName("eventstore.append").WithStatus("success").Assert())
}

func Test_NewProvider_Validation(t *testing.T) {
	client := givenUnconnectedClient(t)

	tests := []struct {
		name     string
		client   *mongo.Client
		database string
		option   mongoengine.Option
		wantErr  error
	}{
		{name: "nil client", database: "eventstore", wantErr: eventstore.ErrNilDatabaseConnection},
		{name: "empty database", client: client, wantErr: mongoengine.ErrEmptyDatabaseName},
		{name: "empty events collection", client: client, database: "eventstore", option: mongoengine.WithEventsCollectionName(""), wantErr: eventstore.ErrEmptyTableName},
		{name: "empty bookmarks collection", client: client, database: "eventstore", option: mongoengine.WithBookmarksCollectionName(""), wantErr: eventstore.ErrEmptyTableName},
		{name: "empty counters collection", client: client, database: "eventstore", option: mongoengine.WithCountersCollectionName(""), wantErr: eventstore.ErrEmptyTableName},
		{name: "negative limit", client: client, database: "eventstore", option: mongoengine.WithLimit(-1), wantErr: eventstore.ErrInvalidLimit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var opts []mongoengine.Option
			if tc.option != nil {
				opts = append(opts, tc.option)
			}

			_, err := mongoengine.NewProvider(tc.client, tc.database, opts...)

			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func Test_Out_Of_Order_Tolerance_Is_Enabled_By_Default(t *testing.T) {
	client := givenUnconnectedClient(t)

	provider, err := mongoengine.NewProvider(client, "eventstore")
	require.NoError(t, err)

	assert.True(t, provider.Settings().HandleOutOfOrderEvents)
}
