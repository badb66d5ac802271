package spies

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// ReadCall is one recorded GetEventsFor call.
type ReadCall struct {
	Stream      string
	AggregateID string
	Options     eventstore.ReadOptions
}

// ProviderSpy wraps an eventstore.Provider and records reads and appends.
type ProviderSpy struct {
	eventstore.Provider

	mu              sync.Mutex
	readCalls       []ReadCall
	fromCalls       int
	appendCalls     int
	setPositions    []eventstore.Position
	failGetFrom     error
	failSetPosition error
}

func NewProviderSpy(provider eventstore.Provider) *ProviderSpy {
	return &ProviderSpy{Provider: provider}
}

func (s *ProviderSpy) GetEventsFor(
	ctx context.Context,
	stream string,
	aggregateID string,
	opts ...eventstore.ReadOption,
) (eventstore.StoredEvents, error) {

	s.mu.Lock()
	s.readCalls = append(s.readCalls, ReadCall{Stream: stream, AggregateID: aggregateID, Options: eventstore.BuildReadOptions(opts...)})
	s.mu.Unlock()

	return s.Provider.GetEventsFor(ctx, stream, aggregateID, opts...)
}

func (s *ProviderSpy) GetEventsFrom(
	ctx context.Context,
	streams []string,
	position eventstore.Position,
	limit int,
) (eventstore.StoredEvents, error) {

	s.mu.Lock()
	s.fromCalls++
	failure := s.failGetFrom
	s.mu.Unlock()

	if failure != nil {
		return nil, failure
	}

	return s.Provider.GetEventsFrom(ctx, streams, position, limit)
}

func (s *ProviderSpy) SetPosition(ctx context.Context, bookmark string, position eventstore.Position) error {
	s.mu.Lock()
	s.setPositions = append(s.setPositions, position)
	failure := s.failSetPosition
	s.mu.Unlock()

	if failure != nil {
		return failure
	}

	return s.Provider.SetPosition(ctx, bookmark, position)
}

func (s *ProviderSpy) Append(
	ctx context.Context,
	stream string,
	aggregateID string,
	expectedNextVersion eventstore.Version,
	events ...eventstore.StorableEvent,
) (eventstore.StoredEvents, error) {

	s.mu.Lock()
	s.appendCalls++
	s.mu.Unlock()

	return s.Provider.Append(ctx, stream, aggregateID, expectedNextVersion, events...)
}

// FailGetEventsFrom makes every following GetEventsFrom call fail with err, or succeed again if err is nil.
func (s *ProviderSpy) FailGetEventsFrom(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failGetFrom = err
}

// FailSetPosition makes every following SetPosition call fail with err, or succeed again if err is nil.
func (s *ProviderSpy) FailSetPosition(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failSetPosition = err
}

// ReadCalls returns a copy of all recorded GetEventsFor calls.
func (s *ProviderSpy) ReadCalls() []ReadCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]ReadCall, len(s.readCalls))
	copy(calls, s.readCalls)

	return calls
}

// IncrementalReadCount counts the GetEventsFor calls made with AfterPosition.
func (s *ProviderSpy) IncrementalReadCount() int {
	count := 0
	for _, call := range s.ReadCalls() {
		if call.Options.HasAfterPosition {
			count++
		}
	}

	return count
}

// GetEventsFromCount returns the number of GetEventsFrom calls.
func (s *ProviderSpy) GetEventsFromCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fromCalls
}

// AppendCount returns the number of Append calls.
func (s *ProviderSpy) AppendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendCalls
}

// SetPositions returns all positions passed to SetPosition.
func (s *ProviderSpy) SetPositions() []eventstore.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]eventstore.Position, len(s.setPositions))
	copy(positions, s.setPositions)

	return positions
}

// Reset clears all recorded calls.
func (s *ProviderSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readCalls = nil
	s.fromCalls = 0
	s.appendCalls = 0
	s.setPositions = nil
}
