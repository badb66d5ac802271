package projector

import (
	"context"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// Decoder turns a stored event into a typed domain event. domain.Codec implementations satisfy it.
type Decoder[E any] interface {
	Decode(event eventstore.StorableEvent) (E, error)
}

// TypedCallback handles one decoded event.
type TypedCallback[E any] func(ctx context.Context, aggregateID string, event E, meta eventstore.EventMeta) error

// On adapts a TypedCallback into a Callback, decoding each event with decoder first.
// Decoding errors fail the dispatch like callback errors do.
func On[E any](decoder Decoder[E], fn TypedCallback[E]) Callback {
	return func(ctx context.Context, aggregateID string, event eventstore.StorableEvent, meta eventstore.EventMeta) error {
		decoded, err := decoder.Decode(event)
		if err != nil {
			return err
		}

		return fn(ctx, aggregateID, decoded, meta)
	}
}
