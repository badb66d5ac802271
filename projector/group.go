package projector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoProjectors is returned by NewGroup without any Projector.
	ErrNoProjectors = errors.New("no projectors provided")

	// ErrDuplicateBookmark is returned by NewGroup when two Projectors share a bookmark.
	ErrDuplicateBookmark = errors.New("bookmark is used by more than one projector")
)

// Group runs several Projectors with distinct bookmarks concurrently.
type Group struct {
	projectors []*Projector
}

// NewGroup creates a Group. Every Projector must advance its own bookmark.
func NewGroup(projectors ...*Projector) (*Group, error) {
	if len(projectors) == 0 {
		return nil, ErrNoProjectors
	}

	bookmarks := make(map[string]struct{}, len(projectors))
	for i, p := range projectors {
		if p == nil {
			return nil, fmt.Errorf("projector at index %d is nil", i)
		}

		if _, ok := bookmarks[p.bookmark]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBookmark, p.bookmark)
		}

		bookmarks[p.bookmark] = struct{}{}
	}

	return &Group{projectors: projectors}, nil
}

// Run runs all Projectors until ctx is done. If one of them cannot be started,
// the others are canceled and its error is returned. Cancellation or expiry of ctx is not an error.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	for _, p := range g.projectors {
		eg.Go(func() error {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("projector %q failed: %w", p.bookmark, err)
			}

			return nil
		})
	}

	return eg.Wait()
}

// CatchUp runs CatchUp on all Projectors concurrently and returns the total number of events passed.
// The first error cancels the remaining Projectors.
func (g *Group) CatchUp(ctx context.Context) (int, error) {
	eg, ctx := errgroup.WithContext(ctx)

	var total atomic.Int64
	for _, p := range g.projectors {
		eg.Go(func() error {
			count, err := p.CatchUp(ctx)
			total.Add(int64(count))

			if err != nil {
				return fmt.Errorf("projector %q failed: %w", p.bookmark, err)
			}

			return nil
		})
	}

	err := eg.Wait()

	return int(total.Load()), err
}
