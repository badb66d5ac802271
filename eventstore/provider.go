package eventstore

import (
	"context"
)

// Provider is the contract every event store backend implements.
//
// A Provider is safe for concurrent use by any number of domains and projectors.
// Ordering and conflict detection are owned by the backend alone: Append relies on
// the backend's uniqueness of (stream, aggregateID, version) and never on an in-process lock.
type Provider interface {
	// GetEventsFor returns the history of one aggregate in ascending version order.
	// With AfterPosition only events with a greater position are returned, plus any
	// unprocessed event when out-of-order tolerance is enabled.
	GetEventsFor(ctx context.Context, stream string, aggregateID string, opts ...ReadOption) (StoredEvents, error)

	// GetLastEventFor returns the event with the highest position in the given streams,
	// narrowed to one aggregate unless aggregateID is empty. The bool is false when no event matched.
	GetLastEventFor(ctx context.Context, streams []string, aggregateID string) (StoredEvent, bool, error)

	// GetEventsFrom returns at most limit events of the given streams with a position greater than
	// position, in ascending position order. A limit <= 0 falls back to Settings().Limit, then unbounded.
	GetEventsFrom(ctx context.Context, streams []string, position Position, limit int) (StoredEvents, error)

	// MarkEvent flags an event as processed. Providers without out-of-order tracking return ErrNotImplemented.
	MarkEvent(ctx context.Context, streams []string, aggregateID string, position Position) error

	// GetPosition returns the stored position of a bookmark, or BeginningOfTime if it does not exist.
	GetPosition(ctx context.Context, bookmark string) (Position, error)

	// SetPosition creates or updates a bookmark.
	SetPosition(ctx context.Context, bookmark string, position Position) error

	// Append atomically inserts events with the versions expectedNextVersion, expectedNextVersion+1, ...
	// and returns them with their assigned positions. If any of those versions already exists,
	// nothing is inserted and ErrVersionConflict is returned.
	Append(ctx context.Context, stream string, aggregateID string, expectedNextVersion Version, events ...StorableEvent) (StoredEvents, error)

	// Settings exposes the configuration the Provider was constructed with.
	Settings() Settings
}

// ErrorObserver receives failures which are observed rather than returned, e.g., inside a projector loop.
type ErrorObserver func(ctx context.Context, err error)

// Settings holds the Provider configuration that is relevant to its consumers.
type Settings struct {
	// Limit is the default batch size of GetEventsFrom. Zero means unbounded.
	Limit int

	// OnError is the default error observer of projectors running on this Provider. May be nil.
	OnError ErrorObserver

	// HandleOutOfOrderEvents switches reads from "position > p" to "position > p OR processed = false".
	HandleOutOfOrderEvents bool
}

// EffectiveLimit resolves the limit of a GetEventsFrom call: limit if positive, else the Provider default.
// A result of zero means unbounded.
func (s Settings) EffectiveLimit(limit int) int {
	if limit > 0 {
		return limit
	}

	if s.Limit > 0 {
		return s.Limit
	}

	return 0
}

// ReadOptions holds the resolved ReadOption values of a GetEventsFor call.
type ReadOptions struct {
	AfterPosition    Position
	HasAfterPosition bool
}

// ReadOption narrows a GetEventsFor call.
type ReadOption func(*ReadOptions)

// AfterPosition restricts GetEventsFor to events with a position greater than position.
func AfterPosition(position Position) ReadOption {
	return func(o *ReadOptions) {
		o.AfterPosition = position
		o.HasAfterPosition = true
	}
}

// BuildReadOptions applies opts to an empty ReadOptions.
func BuildReadOptions(opts ...ReadOption) ReadOptions {
	var o ReadOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
