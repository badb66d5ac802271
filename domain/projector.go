package domain

import (
	"github.com/AntonStoeckl/catchup-eventstore-go/projector"
)

type eventTypeLister interface {
	EventTypes() []string
}

// Projector creates a projector.Projector that follows the Domain's stream from bookmark.
// Without eventTypes it declares every event type the Codec knows, if the Codec lists them.
func (d *Domain[E, A, C]) Projector(
	bookmark string,
	eventTypes []string,
	opts ...projector.Option,
) (*projector.Projector, error) {

	if len(eventTypes) == 0 {
		if lister, ok := d.codec.(eventTypeLister); ok {
			eventTypes = lister.EventTypes()
		}
	}

	return projector.New(bookmark, d.provider, []projector.Subscription{
		{Stream: d.stream, EventTypes: eventTypes},
	}, opts...)
}

// On adapts fn into a projector.Callback that decodes events with the Domain's Codec.
func (d *Domain[E, A, C]) On(fn projector.TypedCallback[E]) projector.Callback {
	return projector.On[E](d.codec, fn)
}
