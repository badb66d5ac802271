// Package memoryengine provides an in-memory implementation of eventstore.Provider.
//
// It is the reference backend for tests and examples. Appends and reads are serialized
// by a sync.RWMutex, positions come from a counter, so commit order always equals position
// order and MarkEvent is not needed (it returns eventstore.ErrNotImplemented).
//
// Basic usage:
//
//	provider, err := memoryengine.NewProvider(memoryengine.WithLimit(100))
//	committed, err := provider.Append(ctx, "orders", orderID, 1, event)
package memoryengine
