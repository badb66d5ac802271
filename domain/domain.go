package domain

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	component = "domain"

	operationLoad    = "load"
	operationExecute = "execute"

	attrCommandType = "command_type"

	logMsgLoadFailed          = "loading aggregate failed"
	logMsgHandlerFailed       = "command handler failed"
	logMsgAppendFailed        = "appending command events failed"
	logMsgCommandExecuted     = "command executed"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logMsgRefreshed           = "cached aggregate refreshed"

	errorTypeLoad    = "load_failed"
	errorTypeHandler = "handler_failed"
	errorTypeEncode  = "encode_failed"
	errorTypeAppend  = "append_failed"
	errorTypeUnknown = "unknown_command"
)

var (
	// ErrUnknownCommand is returned by Execute when no handler is registered for the command type.
	ErrUnknownCommand = errors.New("no handler registered for command type")

	// ErrNilProvider is returned by New without a Provider.
	ErrNilProvider = errors.New("provider must not be nil")

	// ErrNilCodec is returned by New without a Codec.
	ErrNilCodec = errors.New("codec must not be nil")

	// ErrNilFold is returned by New without a Fold.
	ErrNilFold = errors.New("fold must not be nil")
)

// Options holds the mandatory collaborators of a Domain.
type Options[E any, A any] struct {
	Stream   string
	Provider eventstore.Provider
	Codec    Codec[E]

	// Initial returns the state of an aggregate without events. Nil means the zero value of A.
	Initial func() A

	Fold Fold[E, A]
}

// Domain reconstructs the aggregates of one stream and dispatches commands against them.
type Domain[E any, A any, C Command] struct {
	stream   string
	provider eventstore.Provider
	codec    Codec[E]
	initial  func() A
	fold     Fold[E, A]
	handlers map[string]CommandHandler[E, A, C]
	cache    Cache[A]
	observer *instrument.Observer
}

// New creates a Domain. handlers maps command types to their handlers.
func New[E any, A any, C Command](
	options Options[E, A],
	handlers map[string]CommandHandler[E, A, C],
	opts ...Option,
) (*Domain[E, A, C], error) {

	switch {
	case options.Stream == "":
		return nil, eventstore.ErrEmptyStream
	case options.Provider == nil:
		return nil, ErrNilProvider
	case options.Codec == nil:
		return nil, ErrNilCodec
	case options.Fold == nil:
		return nil, ErrNilFold
	}

	s := settings{}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	d := &Domain[E, A, C]{
		stream:   options.Stream,
		provider: options.Provider,
		codec:    options.Codec,
		initial:  options.Initial,
		fold:     options.Fold,
		handlers: make(map[string]CommandHandler[E, A, C], len(handlers)),
		observer: instrument.New(component),
	}

	for commandType, handler := range handlers {
		d.handlers[commandType] = handler
	}

	if s.cache != nil {
		cache, ok := s.cache.(Cache[A])
		if !ok {
			return nil, ErrCacheTypeMismatch
		}

		d.cache = cache
	}

	d.observer.SetLogger(s.logger)
	d.observer.SetContextualLogger(s.contextualLogger)
	d.observer.SetMetrics(s.metricsCollector)
	d.observer.SetTracing(s.tracingCollector)

	return d, nil
}

// Stream returns the stream the Domain reads from and appends to.
func (d *Domain[E, A, C]) Stream() string {
	return d.stream
}

// GetAggregate returns the current state of an aggregate.
//
// On a cache hit only the events after the cached position are read and folded.
// Otherwise the full history is folded from the initial state, version 0.
// An aggregate without events is returned with version 0 and is not cached.
func (d *Domain[E, A, C]) GetAggregate(ctx context.Context, aggregateID string) (Aggregate[A], error) {
	if aggregateID == "" {
		return Aggregate[A]{}, eventstore.ErrEmptyAggregateID
	}

	op, ctx := d.observer.Start(ctx, operationLoad, map[string]string{
		instrument.AttrStream:      d.stream,
		instrument.AttrAggregateID: aggregateID,
	})

	aggregate, err := d.load(ctx, aggregateID)
	if err != nil {
		op.Failure(errorTypeLoad)
		d.observer.LogError(ctx, logMsgLoadFailed, err, instrument.AttrAggregateID, aggregateID)

		return Aggregate[A]{}, err
	}

	op.Success(int(aggregate.Version))

	return aggregate, nil
}

func (d *Domain[E, A, C]) load(ctx context.Context, aggregateID string) (Aggregate[A], error) {
	if d.cache != nil {
		if entry, hit := d.cache.Get(aggregateID); hit {
			return d.refresh(ctx, aggregateID, entry)
		}
	}

	history, err := d.provider.GetEventsFor(ctx, d.stream, aggregateID)
	if err != nil {
		return Aggregate[A]{}, err
	}

	aggregate, position, err := d.foldStored(d.empty(aggregateID), eventstore.BeginningOfTime, history)
	if err != nil {
		return Aggregate[A]{}, err
	}

	if d.cache != nil && len(history) > 0 {
		d.cache.Put(aggregateID, CacheEntry[A]{Aggregate: aggregate, Position: position})
	}

	return aggregate, nil
}

func (d *Domain[E, A, C]) refresh(ctx context.Context, aggregateID string, entry CacheEntry[A]) (Aggregate[A], error) {
	newer, err := d.provider.GetEventsFor(ctx, d.stream, aggregateID, eventstore.AfterPosition(entry.Position))
	if err != nil {
		return Aggregate[A]{}, err
	}

	if len(newer) == 0 {
		return entry.Aggregate, nil
	}

	aggregate, position, err := d.foldStored(entry.Aggregate, entry.Position, newer)
	if err != nil {
		return Aggregate[A]{}, err
	}

	d.cache.Put(aggregateID, CacheEntry[A]{Aggregate: aggregate, Position: position})
	d.observer.LogDebug(ctx, logMsgRefreshed,
		instrument.AttrAggregateID, aggregateID,
		instrument.AttrEventCount, len(newer),
		instrument.AttrVersion, int64(aggregate.Version))

	return aggregate, nil
}

func (d *Domain[E, A, C]) empty(aggregateID string) Aggregate[A] {
	aggregate := Aggregate[A]{AggregateID: aggregateID}
	if d.initial != nil {
		aggregate.State = d.initial()
	}

	return aggregate
}

// foldStored decodes and folds stored events in version order, skipping versions already folded.
func (d *Domain[E, A, C]) foldStored(
	aggregate Aggregate[A],
	position eventstore.Position,
	stored eventstore.StoredEvents,
) (Aggregate[A], eventstore.Position, error) {

	ordered := slices.SortedStableFunc(slices.Values(stored), func(a, b eventstore.StoredEvent) int {
		return cmp.Compare(a.Version, b.Version)
	})

	for _, storedEvent := range ordered {
		position = max(position, storedEvent.Position)

		if storedEvent.Version <= aggregate.Version {
			continue
		}

		event, err := d.codec.Decode(storedEvent.Event)
		if err != nil {
			return Aggregate[A]{}, position, err
		}

		aggregate = apply(d.fold, aggregate, event, storedEvent.Meta())
	}

	return aggregate, position, nil
}

// Execute loads the aggregate, runs the handler for cmd and appends the resulting events.
// It returns the aggregate with the committed events folded in.
//
// Handler errors and eventstore.ErrVersionConflict are returned unchanged.
func (d *Domain[E, A, C]) Execute(ctx context.Context, aggregateID string, cmd C) (Aggregate[A], error) {
	aggregate, err := d.GetAggregate(ctx, aggregateID)
	if err != nil {
		return Aggregate[A]{}, err
	}

	return d.execute(ctx, aggregate, cmd)
}

func (d *Domain[E, A, C]) execute(ctx context.Context, aggregate Aggregate[A], cmd C) (Aggregate[A], error) {
	commandType := cmd.CommandType()

	op, ctx := d.observer.Start(ctx, operationExecute, map[string]string{
		instrument.AttrStream:      d.stream,
		instrument.AttrAggregateID: aggregate.AggregateID,
		attrCommandType:            commandType,
	})

	handler, ok := d.handlers[commandType]
	if !ok {
		op.Failure(errorTypeUnknown)
		return aggregate, fmt.Errorf("%w: %s", ErrUnknownCommand, commandType)
	}

	events, err := handler(ctx, cmd, aggregate)
	if err != nil {
		op.Failure(errorTypeHandler)
		d.observer.LogError(ctx, logMsgHandlerFailed, err, attrCommandType, commandType)

		return aggregate, err
	}

	if len(events) == 0 {
		op.Success(0)
		return aggregate, nil
	}

	storables := make(eventstore.StorableEvents, 0, len(events))
	for _, event := range events {
		storable, encodeErr := d.codec.Encode(event)
		if encodeErr != nil {
			op.Failure(errorTypeEncode)
			return aggregate, encodeErr
		}

		storables = append(storables, storable)
	}

	committed, err := d.provider.Append(ctx, d.stream, aggregate.AggregateID, aggregate.Version+1, storables...)
	if err != nil {
		if errors.Is(err, eventstore.ErrVersionConflict) {
			op.Conflict()
			d.observer.LogOperation(ctx, logMsgConcurrencyConflict,
				attrCommandType, commandType,
				instrument.AttrAggregateID, aggregate.AggregateID,
				instrument.AttrVersion, int64(aggregate.Version+1))

			return aggregate, err
		}

		op.Failure(errorTypeAppend)
		d.observer.LogError(ctx, logMsgAppendFailed, err, attrCommandType, commandType)

		return aggregate, err
	}

	next := aggregate
	position := eventstore.BeginningOfTime
	for i, storedEvent := range committed {
		next = apply(d.fold, next, events[i], storedEvent.Meta())
		position = max(position, storedEvent.Position)
	}

	if d.cache != nil {
		d.cache.Put(aggregate.AggregateID, CacheEntry[A]{Aggregate: next, Position: position})
	}

	duration := op.Success(len(committed))
	d.observer.LogOperation(ctx, logMsgCommandExecuted,
		attrCommandType, commandType,
		instrument.AttrAggregateID, aggregate.AggregateID,
		instrument.AttrVersion, int64(next.Version),
		instrument.AttrDurationMS, instrument.ToMilliseconds(duration))

	return next, nil
}
