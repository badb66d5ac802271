package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// ErrCommandTypeMismatch is returned by a Typed handler that receives a command of another Go type.
var ErrCommandTypeMismatch = errors.New("command does not have the type the handler expects")

// Aggregate is the folded state of one entity. Every fold step produces a new value.
type Aggregate[A any] struct {
	AggregateID string
	Version     eventstore.Version
	State       A
}

// Fold combines one event and the prior state into the next state. It must not perform I/O.
type Fold[E any, A any] func(event E, state A, meta eventstore.EventMeta) A

// Command is anything that names the handler it is dispatched to.
type Command interface {
	CommandType() string
}

// CommandHandler decides which events a command produces for the current aggregate.
// Returning no events is a no-op.
type CommandHandler[E any, A any, C Command] func(ctx context.Context, cmd C, aggregate Aggregate[A]) ([]E, error)

// Typed adapts a handler for one concrete command type T into a CommandHandler for the command interface C.
func Typed[E any, A any, C Command, T Command](
	handle func(ctx context.Context, cmd T, aggregate Aggregate[A]) ([]E, error),
) CommandHandler[E, A, C] {

	return func(ctx context.Context, cmd C, aggregate Aggregate[A]) ([]E, error) {
		typed, ok := any(cmd).(T)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrCommandTypeMismatch, cmd)
		}

		return handle(ctx, typed, aggregate)
	}
}

// apply folds one event into aggregate, unless its version was already folded.
func apply[E any, A any](fold Fold[E, A], aggregate Aggregate[A], event E, meta eventstore.EventMeta) Aggregate[A] {
	if meta.Version <= aggregate.Version {
		return aggregate
	}

	return Aggregate[A]{
		AggregateID: meta.AggregateID,
		Version:     meta.Version,
		State:       fold(event, aggregate.State, meta),
	}
}
