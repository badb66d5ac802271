package projector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	component = "projector"

	defaultPollInterval = time.Second

	operationRunOnce     = "run_once"
	operationSetPosition = "set_position"

	attrDispatched = "dispatched_count"

	logMsgBatchDispatched = "batch dispatched"
	logMsgEmptyBatch      = "no new events"
	logMsgRunFailed       = "run failed"
	logMsgPositionSet     = "bookmark position set"

	errorTypeGetPosition = "get_position_failed"
	errorTypeRead        = "read_failed"
	errorTypeDispatch    = "dispatch_failed"
	errorTypeMark        = "mark_failed"
	errorTypeSetPosition = "set_position_failed"
)

var (
	// ErrNilProvider is returned by New without a Provider.
	ErrNilProvider = errors.New("provider must not be nil")

	// ErrNoSubscriptions is returned by New without any Subscription.
	ErrNoSubscriptions = errors.New("at least one subscription is required")

	// ErrNilCallback is returned by Handle for a nil Callback.
	ErrNilCallback = errors.New("callback must not be nil")

	// ErrUnknownStream is returned by Handle for a stream the Projector does not subscribe to.
	ErrUnknownStream = errors.New("stream is not subscribed")

	// ErrUnknownEventType is returned by Handle for an event type its Subscription does not declare.
	ErrUnknownEventType = errors.New("event type is not declared for the stream")

	// ErrAlreadyRunning is returned by Run and Start while the loop is running.
	ErrAlreadyRunning = errors.New("projector is already running")

	// ErrDispatchFailed wraps the error of a failing callback together with the position of its event.
	ErrDispatchFailed = errors.New("dispatching event failed")
)

// Callback handles one dispatched event.
type Callback func(ctx context.Context, aggregateID string, event eventstore.StorableEvent, meta eventstore.EventMeta) error

// Key identifies the callback of an event.
type Key struct {
	Stream    string
	EventType string
}

func (k Key) String() string {
	return k.Stream + "-" + k.EventType
}

// Subscription declares a stream and the event types that may be handled on it.
type Subscription struct {
	Stream     string
	EventTypes []string
}

// Projector consumes the subscribed streams from its bookmark onward.
//
// RunOnce calls on one Projector are serialized. Projectors with distinct bookmarks are independent.
type Projector struct {
	bookmark     string
	provider     eventstore.Provider
	streams      []string
	schema       map[Key]struct{}
	limit        int
	pollInterval time.Duration
	onError      eventstore.ErrorObserver
	observer     *instrument.Observer

	callbacksMu sync.RWMutex
	callbacks   map[Key]Callback

	runMu sync.Mutex

	lifecycleMu sync.Mutex
	stop        chan struct{}
	done        chan struct{}
}

type batchKey struct{}

// batch is the RunOnce in flight. Callbacks find it in their context.
type batch struct {
	projector    *Projector
	repositioned atomic.Bool
}

func batchOf(ctx context.Context, p *Projector) (*batch, bool) {
	current, ok := ctx.Value(batchKey{}).(*batch)
	if !ok || current.projector != p {
		return nil, false
	}

	return current, true
}

// New creates a Projector for the given bookmark and subscriptions.
func New(
	bookmark string,
	provider eventstore.Provider,
	subscriptions []Subscription,
	opts ...Option,
) (*Projector, error) {

	switch {
	case bookmark == "":
		return nil, eventstore.ErrEmptyBookmark
	case provider == nil:
		return nil, ErrNilProvider
	case len(subscriptions) == 0:
		return nil, ErrNoSubscriptions
	}

	p := &Projector{
		bookmark:     bookmark,
		provider:     provider,
		schema:       make(map[Key]struct{}),
		pollInterval: defaultPollInterval,
		observer:     instrument.New(component),
		callbacks:    make(map[Key]Callback),
	}

	for _, subscription := range subscriptions {
		if subscription.Stream == "" {
			return nil, eventstore.ErrEmptyStream
		}

		if !slices.Contains(p.streams, subscription.Stream) {
			p.streams = append(p.streams, subscription.Stream)
		}

		for _, eventType := range subscription.EventTypes {
			p.schema[Key{Stream: subscription.Stream, EventType: eventType}] = struct{}{}
		}
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Bookmark returns the name of the bookmark the Projector advances.
func (p *Projector) Bookmark() string {
	return p.bookmark
}

// Streams returns the subscribed streams.
func (p *Projector) Streams() []string {
	return slices.Clone(p.streams)
}

// Handle registers the callback for events of eventType on stream, replacing an earlier registration.
func (p *Projector) Handle(stream string, eventType string, callback Callback) error {
	if callback == nil {
		return ErrNilCallback
	}

	if !slices.Contains(p.streams, stream) {
		return fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}

	key := Key{Stream: stream, EventType: eventType}
	if _, ok := p.schema[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, key)
	}

	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()

	p.callbacks[key] = callback

	return nil
}

func (p *Projector) callback(key Key) Callback {
	p.callbacksMu.RLock()
	defer p.callbacksMu.RUnlock()

	return p.callbacks[key]
}

// RunOnce reads the bookmark, fetches the next batch and dispatches it.
// It returns the number of events the bookmark advanced over, including events without a callback.
//
// A failing callback stops the batch; the bookmark still advances to the event before it
// and the returned error wraps ErrDispatchFailed and the callback's error.
// A callback that moves the bookmark with SetPosition or Reset also ends the batch,
// and the bookmark keeps the position it was moved to.
func (p *Projector) RunOnce(ctx context.Context) (int, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	op, ctx := p.observer.Start(ctx, operationRunOnce, map[string]string{instrument.AttrBookmark: p.bookmark})

	position, err := p.provider.GetPosition(ctx, p.bookmark)
	if err != nil {
		op.Failure(errorTypeGetPosition)
		return 0, err
	}

	events, err := p.provider.GetEventsFrom(ctx, p.streams, position, p.limit)
	if err != nil {
		op.Failure(errorTypeRead)
		return 0, err
	}

	if len(events) == 0 {
		op.Success(0)
		p.observer.LogDebug(ctx, logMsgEmptyBatch, instrument.AttrBookmark, p.bookmark, instrument.AttrPosition, int64(position))

		return 0, nil
	}

	current := &batch{projector: p}
	seen, dispatched, dispatchErr := p.dispatch(context.WithValue(ctx, batchKey{}, current), current, events)

	if err = p.commit(ctx, position, seen, current.repositioned.Load()); err != nil {
		op.Failure(errorTypeOf(err))
		return len(seen), errors.Join(dispatchErr, err)
	}

	if dispatchErr != nil {
		op.Failure(errorTypeDispatch)
		return len(seen), dispatchErr
	}

	duration := op.Success(len(seen))
	p.observer.LogOperation(ctx, logMsgBatchDispatched,
		instrument.AttrBookmark, p.bookmark,
		instrument.AttrEventCount, len(seen),
		attrDispatched, dispatched,
		instrument.AttrPosition, int64(eventstore.LastPosition(seen, position)),
		instrument.AttrDurationMS, instrument.ToMilliseconds(duration))

	return len(seen), nil
}

// dispatch hands events to their callbacks in ascending position order until one fails
// or one moves the bookmark. It returns the events that were passed, with or without a callback.
func (p *Projector) dispatch(
	ctx context.Context,
	current *batch,
	events eventstore.StoredEvents,
) (eventstore.StoredEvents, int, error) {

	seen := make(eventstore.StoredEvents, 0, len(events))
	dispatched := 0

	for _, event := range events {
		if callback := p.callback(Key{Stream: event.Stream, EventType: event.EventType()}); callback != nil {
			if err := callback(ctx, event.AggregateID, event.Event, event.Meta()); err != nil {
				return seen, dispatched, fmt.Errorf("%w at position %d: %w", ErrDispatchFailed, event.Position, err)
			}

			dispatched++
		}

		seen = append(seen, event)

		if current.repositioned.Load() {
			break
		}
	}

	return seen, dispatched, nil
}

// commit marks seen events as processed when the Provider tracks out-of-order events,
// then advances the bookmark to the highest seen position unless a callback has moved it.
func (p *Projector) commit(
	ctx context.Context,
	position eventstore.Position,
	seen eventstore.StoredEvents,
	repositioned bool,
) error {

	if len(seen) == 0 {
		return nil
	}

	if p.provider.Settings().HandleOutOfOrderEvents {
		for _, event := range seen {
			if err := p.provider.MarkEvent(ctx, []string{event.Stream}, event.AggregateID, event.Position); err != nil {
				return &commitError{errorType: errorTypeMark, err: err}
			}
		}
	}

	next := eventstore.LastPosition(seen, position)
	if repositioned || next == position {
		return nil
	}

	if err := p.provider.SetPosition(ctx, p.bookmark, next); err != nil {
		return &commitError{errorType: errorTypeSetPosition, err: err}
	}

	return nil
}

type commitError struct {
	errorType string
	err       error
}

func (e *commitError) Error() string { return e.err.Error() }
func (e *commitError) Unwrap() error { return e.err }

func errorTypeOf(err error) string {
	var ce *commitError
	if errors.As(err, &ce) {
		return ce.errorType
	}

	return errorTypeDispatch
}

// CatchUp calls RunOnce until a batch comes back empty and returns the total number of events passed.
func (p *Projector) CatchUp(ctx context.Context) (int, error) {
	total := 0

	for {
		count, err := p.RunOnce(ctx)
		total += count

		if err != nil || count == 0 {
			return total, err
		}
	}
}

// Run calls RunOnce until Stop is called or ctx is canceled, idling for the poll interval
// after an empty batch or an error. Errors are observed, not returned.
//
// Run returns nil after Stop and ctx.Err() after cancellation.
func (p *Projector) Run(ctx context.Context) error {
	stop, done, err := p.begin()
	if err != nil {
		return err
	}
	defer p.end(done)

	return p.loop(ctx, stop)
}

// Start runs the Projector in a new goroutine, see Run.
func (p *Projector) Start(ctx context.Context) error {
	stop, done, err := p.begin()
	if err != nil {
		return err
	}

	go func() {
		defer p.end(done)
		_ = p.loop(ctx, stop)
	}()

	return nil
}

// Stop asks a running loop to end once the RunOnce in flight, if any, has finished.
// It does not wait; call Wait for that. Stop may be called from a callback.
// Stop on an idle Projector is a no-op.
func (p *Projector) Stop() {
	p.lifecycleMu.Lock()
	stop := p.stop
	p.stop = nil
	p.lifecycleMu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// Wait blocks until the running loop, if any, has returned. No dispatch begins after Wait returns
// unless the Projector is started again. Wait must not be called from a callback.
func (p *Projector) Wait() {
	p.lifecycleMu.Lock()
	done := p.done
	p.lifecycleMu.Unlock()

	if done != nil {
		<-done
	}
}

func (p *Projector) begin() (chan struct{}, chan struct{}, error) {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.done != nil {
		return nil, nil, ErrAlreadyRunning
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	return p.stop, p.done, nil
}

func (p *Projector) end(done chan struct{}) {
	p.lifecycleMu.Lock()
	p.stop = nil
	p.done = nil
	p.lifecycleMu.Unlock()

	close(done)
}

func (p *Projector) loop(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		count, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.observe(ctx, err)
		}

		if err == nil && count > 0 {
			continue
		}

		timer := time.NewTimer(p.pollInterval)
		select {
		case <-stop:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Projector) observe(ctx context.Context, err error) {
	p.observer.LogError(ctx, logMsgRunFailed, err, instrument.AttrBookmark, p.bookmark)

	onError := p.onError
	if onError == nil {
		onError = p.provider.Settings().OnError
	}

	if onError != nil {
		onError(ctx, err)
	}
}

// GetPosition returns the current bookmark position.
func (p *Projector) GetPosition(ctx context.Context) (eventstore.Position, error) {
	return p.provider.GetPosition(ctx, p.bookmark)
}

// SetPosition moves the bookmark, e.g., to replay or to skip part of the streams.
//
// Called from one of the Projector's callbacks with the callback's context, it ends the batch
// after that callback and the next RunOnce continues from position.
func (p *Projector) SetPosition(ctx context.Context, position eventstore.Position) error {
	if current, ok := batchOf(ctx, p); ok {
		if err := p.setPosition(ctx, position); err != nil {
			return err
		}

		current.repositioned.Store(true)

		return nil
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	return p.setPosition(ctx, position)
}

func (p *Projector) setPosition(ctx context.Context, position eventstore.Position) error {
	op, ctx := p.observer.Start(ctx, operationSetPosition, map[string]string{instrument.AttrBookmark: p.bookmark})

	if err := p.provider.SetPosition(ctx, p.bookmark, position); err != nil {
		op.Failure(errorTypeSetPosition)
		return err
	}

	op.Success(0)
	p.observer.LogOperation(ctx, logMsgPositionSet, instrument.AttrBookmark, p.bookmark, instrument.AttrPosition, int64(position))

	return nil
}

// Reset rewinds the bookmark to eventstore.BeginningOfTime, see SetPosition.
func (p *Projector) Reset(ctx context.Context) error {
	return p.SetPosition(ctx, eventstore.BeginningOfTime)
}
