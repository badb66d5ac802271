package spies

import (
	"context"
	"sync"
)

// ErrorObserverSpy captures the errors handed to an eventstore.ErrorObserver.
type ErrorObserverSpy struct {
	errs []error
	mu   sync.Mutex
}

func NewErrorObserverSpy() *ErrorObserverSpy {
	return &ErrorObserverSpy{errs: make([]error, 0)}
}

// Observe has the signature of eventstore.ErrorObserver.
func (s *ErrorObserverSpy) Observe(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs = append(s.errs, err)
}

// Errors returns a copy of all observed errors.
func (s *ErrorObserverSpy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]error, len(s.errs))
	copy(errs, s.errs)

	return errs
}
