package domain

import (
	"context"
)

// Executable is a loaded aggregate that accepts a chain of commands without re-reading the store in between.
//
// Each Execute returns a new Executable based on the aggregate produced by the previous step.
// If another writer appended in the meantime, the next Execute fails with eventstore.ErrVersionConflict.
type Executable[E any, A any, C Command] struct {
	domain    *Domain[E, A, C]
	aggregate Aggregate[A]
}

// Load reads the current aggregate and returns it as an Executable.
func (d *Domain[E, A, C]) Load(ctx context.Context, aggregateID string) (*Executable[E, A, C], error) {
	aggregate, err := d.GetAggregate(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	return &Executable[E, A, C]{domain: d, aggregate: aggregate}, nil
}

// Aggregate returns the aggregate the next command will be executed against.
func (x *Executable[E, A, C]) Aggregate() Aggregate[A] {
	return x.aggregate
}

// Execute runs cmd against the held aggregate. On error the receiver stays usable and unchanged.
func (x *Executable[E, A, C]) Execute(ctx context.Context, cmd C) (*Executable[E, A, C], error) {
	next, err := x.domain.execute(ctx, x.aggregate, cmd)
	if err != nil {
		return x, err
	}

	return &Executable[E, A, C]{domain: x.domain, aggregate: next}, nil
}
