package memoryengine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	component = "eventstore"

	operationGetEventsFor    = "get_events_for"
	operationGetLastEventFor = "get_last_event_for"
	operationGetEventsFrom   = "get_events_from"
	operationAppend          = "append"

	logMsgEventsAppended      = "events appended"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logMsgPositionSet         = "bookmark position set"

	errorTypeValidation = "validation_failed"
)

type versionKey struct {
	stream      string
	aggregateID string
	version     eventstore.Version
}

// Provider is an in-memory eventstore.Provider.
type Provider struct {
	mu        sync.RWMutex
	events    eventstore.StoredEvents
	versions  map[versionKey]struct{}
	bookmarks map[string]eventstore.Position
	position  eventstore.Position
	settings  eventstore.Settings
	seed      eventstore.StoredEvents
	now       func() time.Time
	observer  *instrument.Observer
}

// NewProvider creates a new in-memory Provider with optional configuration.
func NewProvider(options ...Option) (*Provider, error) {
	p := &Provider{
		events:    make(eventstore.StoredEvents, 0),
		versions:  make(map[versionKey]struct{}),
		bookmarks: make(map[string]eventstore.Position),
		now:       time.Now,
		observer:  instrument.New(component),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	if err := p.load(p.seed); err != nil {
		return nil, err
	}
	p.seed = nil

	return p, nil
}

// load appends seed events in position order. Two seed events with the same stream,
// aggregate and version fail with eventstore.ErrVersionConflict.
func (p *Provider) load(seed eventstore.StoredEvents) error {
	sorted := slices.Clone(seed)
	slices.SortStableFunc(sorted, func(a, b eventstore.StoredEvent) int {
		return cmp.Compare(a.Position, b.Position)
	})

	for _, event := range sorted {
		key := versionKey{event.Stream, event.AggregateID, event.Version}
		if _, ok := p.versions[key]; ok {
			return fmt.Errorf("seed event %s/%s version %d: %w",
				event.Stream, event.AggregateID, event.Version, eventstore.ErrVersionConflict)
		}

		if event.Position <= p.position {
			p.position++
			event.Position = p.position
		} else {
			p.position = event.Position
		}

		p.events = append(p.events, event)
		p.versions[key] = struct{}{}
	}

	return nil
}

// Settings exposes the configuration the Provider was constructed with.
// The memory engine never needs out-of-order tolerance.
func (p *Provider) Settings() eventstore.Settings {
	return p.settings
}

// GetEventsFor returns the history of one aggregate in ascending version order.
func (p *Provider) GetEventsFor(
	ctx context.Context,
	stream string,
	aggregateID string,
	opts ...eventstore.ReadOption,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readOptions := eventstore.BuildReadOptions(opts...)
	op, ctx := p.observer.Start(ctx, operationGetEventsFor, map[string]string{
		instrument.AttrStream:      stream,
		instrument.AttrAggregateID: aggregateID,
	})

	p.mu.RLock()
	result := make(eventstore.StoredEvents, 0)
	for _, event := range p.events {
		if event.Stream != stream || event.AggregateID != aggregateID {
			continue
		}

		if readOptions.HasAfterPosition && event.Position <= readOptions.AfterPosition {
			continue
		}

		result = append(result, event)
	}
	p.mu.RUnlock()

	slices.SortStableFunc(result, func(a, b eventstore.StoredEvent) int {
		return cmp.Compare(a.Version, b.Version)
	})

	op.Success(len(result))

	return result, nil
}

// GetLastEventFor returns the event with the highest position in the given streams.
func (p *Provider) GetLastEventFor(
	ctx context.Context,
	streams []string,
	aggregateID string,
) (eventstore.StoredEvent, bool, error) {

	if err := ctx.Err(); err != nil {
		return eventstore.StoredEvent{}, false, err
	}

	if err := eventstore.ValidateStreams(streams); err != nil {
		return eventstore.StoredEvent{}, false, err
	}

	op, _ := p.observer.Start(ctx, operationGetLastEventFor, nil)

	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := len(p.events) - 1; i >= 0; i-- {
		event := p.events[i]
		if !slices.Contains(streams, event.Stream) {
			continue
		}

		if aggregateID != "" && event.AggregateID != aggregateID {
			continue
		}

		op.Success(1)

		return event, true, nil
	}

	op.Success(0)

	return eventstore.StoredEvent{}, false, nil
}

// GetEventsFrom returns at most limit events of the given streams after position, in ascending position order.
func (p *Provider) GetEventsFrom(
	ctx context.Context,
	streams []string,
	position eventstore.Position,
	limit int,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := eventstore.ValidateStreams(streams); err != nil {
		return nil, err
	}

	limit = p.settings.EffectiveLimit(limit)
	op, _ := p.observer.Start(ctx, operationGetEventsFrom, nil)

	p.mu.RLock()
	defer p.mu.RUnlock()

	start, _ := slices.BinarySearchFunc(p.events, position+1, func(e eventstore.StoredEvent, target eventstore.Position) int {
		return cmp.Compare(e.Position, target)
	})

	result := make(eventstore.StoredEvents, 0)
	for _, event := range p.events[start:] {
		if limit > 0 && len(result) >= limit {
			break
		}

		if slices.Contains(streams, event.Stream) {
			result = append(result, event)
		}
	}

	op.Success(len(result))

	return result, nil
}

// MarkEvent is not needed, since commit order always equals position order in memory.
func (p *Provider) MarkEvent(_ context.Context, _ []string, _ string, _ eventstore.Position) error {
	return eventstore.ErrNotImplemented
}

// GetPosition returns the stored position of a bookmark, or eventstore.BeginningOfTime.
func (p *Provider) GetPosition(ctx context.Context, bookmark string) (eventstore.Position, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.BeginningOfTime, err
	}

	if bookmark == "" {
		return eventstore.BeginningOfTime, eventstore.ErrEmptyBookmark
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	position, ok := p.bookmarks[bookmark]
	if !ok {
		return eventstore.BeginningOfTime, nil
	}

	return position, nil
}

// SetPosition creates or updates a bookmark.
func (p *Provider) SetPosition(ctx context.Context, bookmark string, position eventstore.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if bookmark == "" {
		return eventstore.ErrEmptyBookmark
	}

	p.mu.Lock()
	p.bookmarks[bookmark] = position
	p.mu.Unlock()

	p.observer.LogOperation(ctx, logMsgPositionSet, instrument.AttrBookmark, bookmark, instrument.AttrPosition, int64(position))

	return nil
}

// Append atomically inserts events with the versions expectedNextVersion, expectedNextVersion+1, ...
func (p *Provider) Append(
	ctx context.Context,
	stream string,
	aggregateID string,
	expectedNextVersion eventstore.Version,
	events ...eventstore.StorableEvent,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	op, ctx := p.observer.Start(ctx, operationAppend, map[string]string{
		instrument.AttrStream:      stream,
		instrument.AttrAggregateID: aggregateID,
	})

	if err := eventstore.ValidateAppend(stream, aggregateID, expectedNextVersion, events); err != nil {
		op.Failure(errorTypeValidation)
		return nil, err
	}

	created := eventstore.CreateEvents(stream, aggregateID, expectedNextVersion, p.now(), events...)

	p.mu.Lock()

	for _, event := range created {
		if _, exists := p.versions[versionKey{stream, aggregateID, event.Version}]; exists {
			p.mu.Unlock()

			op.Conflict()
			p.observer.LogOperation(ctx, logMsgConcurrencyConflict,
				instrument.AttrStream, stream,
				instrument.AttrAggregateID, aggregateID,
				instrument.AttrVersion, int64(event.Version))

			return nil, eventstore.ErrVersionConflict
		}
	}

	for i := range created {
		p.position++
		created[i].Position = p.position
		p.events = append(p.events, created[i])
		p.versions[versionKey{stream, aggregateID, created[i].Version}] = struct{}{}
	}

	p.mu.Unlock()

	duration := op.Success(len(created))
	p.observer.LogOperation(ctx, logMsgEventsAppended,
		instrument.AttrEventCount, len(created),
		instrument.AttrDurationMS, instrument.ToMilliseconds(duration))

	return created, nil
}
