package sqlengine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

const benchmarkFixtureOrders = 200

func Benchmark_SQLite_Append_With_Many_Events_In_The_Store(b *testing.B) {
	// setup
	provider := givenSQLiteProvider(b)
	fakeClock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// arrange
	for range benchmarkFixtureOrders {
		fixtures.GivenOrderPlacedWasAppended(b, b.Context(), provider, fixtures.OrdersStream, fixtures.GivenUniqueID(b), fakeClock)
	}

	for _, batchSize := range []int{1, 5} {
		b.Run(fmt.Sprintf("append %d events", batchSize), func(b *testing.B) {
			orderID := fixtures.GivenUniqueID(b)
			next := eventstore.Version(1)

			var appendTime time.Duration

			for b.Loop() {
				events := make(eventstore.StorableEvents, 0, batchSize)
				for range batchSize {
					fakeClock = fakeClock.Add(time.Second)
					events = append(events, fixtures.FixtureItemAdded(b, orderID, 1, fakeClock))
				}

				start := time.Now()
				_, err := provider.Append(b.Context(), fixtures.OrdersStream, orderID, next, events...)
				appendTime += time.Since(start)

				require.NoError(b, err)
				next += eventstore.Version(batchSize)
			}

			b.ReportMetric(float64(appendTime.Microseconds())/1000/float64(b.N), "ms/append-op")
		})
	}
}

func Benchmark_SQLite_GetEventsFrom_Batches(b *testing.B) {
	// setup
	provider := givenSQLiteProvider(b)
	fakeClock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// arrange
	for range benchmarkFixtureOrders {
		fixtures.GivenOrderPlacedWasAppended(b, b.Context(), provider, fixtures.OrdersStream, fixtures.GivenUniqueID(b), fakeClock)
	}

	for _, limit := range []int{10, 100} {
		b.Run(fmt.Sprintf("batch of %d", limit), func(b *testing.B) {
			for b.Loop() {
				var position eventstore.Position

				for {
					events, err := provider.GetEventsFrom(b.Context(), []string{fixtures.OrdersStream}, position, limit)
					require.NoError(b, err)

					if len(events) == 0 {
						break
					}

					position = eventstore.LastPosition(events, position)
				}
			}
		})
	}
}
