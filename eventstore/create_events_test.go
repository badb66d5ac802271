package eventstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

func Test_CreateEvents_Stamps_Versions_Positions_And_Timestamps(t *testing.T) {
	// arrange
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	occurredAt := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

	first, err := BuildStorableEventWithEmptyMetadata("OrderPlaced", time.Time{}, []byte(`{"OrderID":"o-1"}`))
	require.NoError(t, err)
	second, err := BuildStorableEventWithEmptyMetadata("OrderShipped", occurredAt, []byte(`{"OrderID":"o-1"}`))
	require.NoError(t, err)

	// act
	stored := CreateEvents("orders", "o-1", 3, now, first, second)

	// assert
	require.Len(t, stored, 2)

	assert.Equal(t, "orders", stored[0].Stream)
	assert.Equal(t, "o-1", stored[0].AggregateID)
	assert.Equal(t, Version(3), stored[0].Version)
	assert.Equal(t, BeginningOfTime, stored[0].Position)
	assert.Equal(t, now, stored[0].Timestamp)
	assert.Equal(t, "OrderPlaced", stored[0].EventType())
	assert.False(t, stored[0].Processed)

	assert.Equal(t, Version(4), stored[1].Version)
	assert.Equal(t, occurredAt, stored[1].Timestamp)
	assert.Equal(t, "OrderShipped", stored[1].EventType())
}

func Test_CreateEvents_Without_Events_Returns_Empty_Slice(t *testing.T) {
	stored := CreateEvents("orders", "o-1", 1, time.Now())

	assert.NotNil(t, stored)
	assert.Empty(t, stored)
}

func Test_ValidateAppend(t *testing.T) {
	event, err := BuildStorableEventWithEmptyMetadata("OrderPlaced", time.Now(), []byte(`{}`))
	require.NoError(t, err)

	tests := []struct {
		name        string
		stream      string
		aggregateID string
		nextVersion Version
		events      StorableEvents
		expectedErr error
	}{
		{name: "valid", stream: "orders", aggregateID: "o-1", nextVersion: 1, events: StorableEvents{event}},
		{name: "empty stream", stream: "", aggregateID: "o-1", nextVersion: 1, events: StorableEvents{event}, expectedErr: ErrEmptyStream},
		{name: "empty aggregate id", stream: "orders", aggregateID: "", nextVersion: 1, events: StorableEvents{event}, expectedErr: ErrEmptyAggregateID},
		{name: "version zero", stream: "orders", aggregateID: "o-1", nextVersion: 0, events: StorableEvents{event}, expectedErr: ErrInvalidVersion},
		{name: "no events", stream: "orders", aggregateID: "o-1", nextVersion: 1, events: nil, expectedErr: ErrNoEventsToAppend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAppend(tt.stream, tt.aggregateID, tt.nextVersion, tt.events)

			if tt.expectedErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_ValidateStreams(t *testing.T) {
	assert.NoError(t, ValidateStreams([]string{"orders", "customers"}))
	assert.ErrorIs(t, ValidateStreams(nil), ErrEmptyStream)
	assert.ErrorIs(t, ValidateStreams([]string{"orders", ""}), ErrEmptyStream)
}
