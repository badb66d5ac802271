package eventstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

func Test_Settings_EffectiveLimit(t *testing.T) {
	assert.Equal(t, 5, Settings{Limit: 10}.EffectiveLimit(5))
	assert.Equal(t, 10, Settings{Limit: 10}.EffectiveLimit(0))
	assert.Equal(t, 10, Settings{Limit: 10}.EffectiveLimit(-1))
	assert.Equal(t, 0, Settings{}.EffectiveLimit(0))
}

func Test_BuildReadOptions(t *testing.T) {
	none := BuildReadOptions()
	assert.False(t, none.HasAfterPosition)

	after := BuildReadOptions(AfterPosition(0))
	assert.True(t, after.HasAfterPosition)
	assert.Equal(t, BeginningOfTime, after.AfterPosition)

	last := BuildReadOptions(AfterPosition(3), AfterPosition(7))
	assert.Equal(t, Position(7), last.AfterPosition)
}

func Test_StoredEvent_Meta_And_LastPosition(t *testing.T) {
	// arrange
	timestamp := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := StoredEvents{
		{Stream: "orders", AggregateID: "o-1", Version: 1, Position: 4, Timestamp: timestamp},
		{Stream: "orders", AggregateID: "o-1", Version: 2, Position: 9, Timestamp: timestamp},
		{Stream: "orders", AggregateID: "o-1", Version: 3, Position: 7, Timestamp: timestamp},
	}

	// act
	meta := events[1].Meta()

	// assert
	assert.Equal(t, EventMeta{Stream: "orders", AggregateID: "o-1", Position: 9, Version: 2, Timestamp: timestamp}, meta)
	assert.Equal(t, Position(9), LastPosition(events, BeginningOfTime))
	assert.Equal(t, Position(12), LastPosition(nil, 12))
}

func Test_ConsistencyLevel_Defaults_To_Strong(t *testing.T) {
	ctx := t.Context()

	assert.Equal(t, StrongConsistency, GetConsistencyLevel(ctx))
	assert.Equal(t, EventualConsistency, GetConsistencyLevel(WithEventualConsistency(ctx)))
	assert.Equal(t, StrongConsistency, GetConsistencyLevel(WithStrongConsistency(WithEventualConsistency(ctx))))
	assert.Equal(t, "eventual", EventualConsistency.String())
}
