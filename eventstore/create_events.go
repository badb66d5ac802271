package eventstore

import (
	"time"
)

// CreateEvents stamps events with the versions nextVersion, nextVersion+1, ..., the zero Position,
// and a Timestamp, which is the event's OccurredAt if set, else now.
//
// It is a convenience for Providers and tests. Consistency is still enforced by Append.
func CreateEvents(stream string, aggregateID string, nextVersion Version, now time.Time, events ...StorableEvent) StoredEvents {
	stored := make(StoredEvents, 0, len(events))

	for i, event := range events {
		timestamp := event.OccurredAt
		if timestamp.IsZero() {
			timestamp = now
		}

		stored = append(stored, StoredEvent{
			Stream:      stream,
			AggregateID: aggregateID,
			Version:     nextVersion + Version(i),
			Position:    BeginningOfTime,
			Timestamp:   timestamp.UTC(),
			Event:       event,
		})
	}

	return stored
}

// ValidateAppend checks the input of a Provider.Append call.
func ValidateAppend(stream string, aggregateID string, expectedNextVersion Version, events StorableEvents) error {
	if stream == "" {
		return ErrEmptyStream
	}

	if aggregateID == "" {
		return ErrEmptyAggregateID
	}

	if expectedNextVersion < 1 {
		return ErrInvalidVersion
	}

	if len(events) == 0 {
		return ErrNoEventsToAppend
	}

	return nil
}

// ValidateStreams checks that at least one stream is given and none is empty.
func ValidateStreams(streams []string) error {
	if len(streams) == 0 {
		return ErrEmptyStream
	}

	for _, stream := range streams {
		if stream == "" {
			return ErrEmptyStream
		}
	}

	return nil
}
