package eventstore

import "context"

// ConsistencyLevel selects where a Provider with a read replica serves a read from.
// Providers without a replica ignore it.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. It is the default, because the domain layer folds
	// the history it appends on top of.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica, e.g., for projectors that can lag behind.
	EventualConsistency
)

type consistencyKey struct{}

// WithStrongConsistency returns a context whose reads go to the primary.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyKey{}, StrongConsistency)
}

// WithEventualConsistency returns a context whose reads may go to a replica:
//
//	events, err := provider.GetEventsFrom(eventstore.WithEventualConsistency(ctx), streams, position, 0)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyKey{}, EventualConsistency)
}

// GetConsistencyLevel returns the level carried by ctx, StrongConsistency if there is none.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(consistencyKey{}).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
