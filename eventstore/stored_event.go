package eventstore

import (
	"time"
)

// Position is the store-assigned, stream-global and strictly increasing sequence number of a StoredEvent.
type Position int64

// Version is the aggregate-local, 1-based sequence number of a StoredEvent.
type Version int64

// BeginningOfTime is the Position of a bookmark that was never written and of an event that was not appended yet.
const BeginningOfTime Position = 0

// StoredEvents is an alias type for a slice of StoredEvent
type StoredEvents = []StoredEvent

// StoredEvent is a StorableEvent wrapped with the data the Provider owns.
//
// Position is assigned by the Provider at append time. Processed is only meaningful
// for Providers with out-of-order tolerance enabled.
type StoredEvent struct {
	Stream      string
	AggregateID string
	Version     Version
	Position    Position
	Timestamp   time.Time
	Processed   bool
	Event       StorableEvent
}

// EventType returns the type tag of the wrapped StorableEvent.
func (e StoredEvent) EventType() string {
	return e.Event.EventType
}

// Meta extracts the EventMeta that is handed to folds and projector callbacks.
func (e StoredEvent) Meta() EventMeta {
	return EventMeta{
		Stream:      e.Stream,
		AggregateID: e.AggregateID,
		Position:    e.Position,
		Version:     e.Version,
		Timestamp:   e.Timestamp,
	}
}

// EventMeta carries the storage metadata of a StoredEvent without its payload.
type EventMeta struct {
	Stream      string
	AggregateID string
	Position    Position
	Version     Version
	Timestamp   time.Time
}

// LastPosition returns the highest Position in events, or fallback if events is empty.
func LastPosition(events StoredEvents, fallback Position) Position {
	last := fallback
	for _, e := range events {
		if e.Position > last {
			last = e.Position
		}
	}

	return last
}
