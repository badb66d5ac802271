package domain

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

var (
	// ErrUnknownEventType is returned when no decoder is registered for a stored event type.
	ErrUnknownEventType = errors.New("no decoder registered for event type")

	// ErrEncodingEventFailed is returned when a domain event cannot be serialized.
	ErrEncodingEventFailed = errors.New("encoding domain event failed")

	// ErrDecodingEventFailed is returned when a stored payload cannot be deserialized.
	ErrDecodingEventFailed = errors.New("decoding domain event failed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec converts domain events to StorableEvents and back.
type Codec[E any] interface {
	Encode(event E) (eventstore.StorableEvent, error)
	Decode(event eventstore.StorableEvent) (E, error)
}

// Event is a domain event that names its own type tag.
type Event interface {
	EventType() string
}

// Decoder turns a JSON payload into a domain event.
type Decoder[E any] func(payloadJSON []byte) (E, error)

// DecodeAs returns a Decoder which unmarshals the payload into T and hands it out as E.
func DecodeAs[E any, T any]() Decoder[E] {
	return func(payloadJSON []byte) (E, error) {
		var empty E
		var target T

		if err := json.Unmarshal(payloadJSON, &target); err != nil {
			return empty, errors.Join(ErrDecodingEventFailed, err)
		}

		event, ok := any(target).(E)
		if !ok {
			return empty, fmt.Errorf("%w: %T does not implement the domain event type", ErrDecodingEventFailed, target)
		}

		return event, nil
	}
}

// JSONCodec serializes domain events as JSON payloads tagged with their EventType.
//
// Events implementing HasOccurredAt() time.Time keep that time as OccurredAt,
// otherwise the Provider stamps the append time.
type JSONCodec[E Event] struct {
	decoders map[string]Decoder[E]
	metadata func(event E) []byte
}

// NewJSONCodec creates a JSONCodec without any registered decoders.
func NewJSONCodec[E Event]() *JSONCodec[E] {
	return &JSONCodec[E]{decoders: make(map[string]Decoder[E])}
}

// Register adds the decoder for an event type. Later registrations replace earlier ones.
func (c *JSONCodec[E]) Register(eventType string, decode Decoder[E]) *JSONCodec[E] {
	c.decoders[eventType] = decode
	return c
}

// WithMetadata sets a function that renders the metadata JSON of each encoded event.
func (c *JSONCodec[E]) WithMetadata(metadata func(event E) []byte) *JSONCodec[E] {
	c.metadata = metadata
	return c
}

// EventTypes returns the registered event types.
func (c *JSONCodec[E]) EventTypes() []string {
	eventTypes := make([]string, 0, len(c.decoders))
	for eventType := range c.decoders {
		eventTypes = append(eventTypes, eventType)
	}

	return eventTypes
}

func (c *JSONCodec[E]) Encode(event E) (eventstore.StorableEvent, error) {
	payloadJSON, err := json.Marshal(event)
	if err != nil {
		return eventstore.StorableEvent{}, errors.Join(ErrEncodingEventFailed, err)
	}

	var occurredAt time.Time
	if timed, ok := any(event).(interface{ HasOccurredAt() time.Time }); ok {
		occurredAt = timed.HasOccurredAt()
	}

	metadataJSON := []byte("{}")
	if c.metadata != nil {
		metadataJSON = c.metadata(event)
	}

	storable, err := eventstore.BuildStorableEvent(event.EventType(), occurredAt, payloadJSON, metadataJSON)
	if err != nil {
		return eventstore.StorableEvent{}, errors.Join(ErrEncodingEventFailed, err)
	}

	return storable, nil
}

func (c *JSONCodec[E]) Decode(event eventstore.StorableEvent) (E, error) {
	decode, ok := c.decoders[event.EventType]
	if !ok {
		var empty E
		return empty, fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType)
	}

	return decode(event.PayloadJSON)
}
