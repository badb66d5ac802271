// Package eventstore provides the core abstractions and types of the catch-up event store.
//
// This package defines the Provider contract that every backend implements, the
// event DTOs that flow through it, and the common error definitions.
//
// Key types:
//   - Provider: append-only event store contract with bookmarks
//   - StorableEvent: a serialized, type-tagged event ready to be appended
//   - StoredEvent: a StorableEvent with stream, aggregate id, version and position
//   - EventMeta: the storage metadata handed to folds and projector callbacks
//   - Settings: the Provider configuration visible to its consumers
//
// Common usage pattern:
//
//	history, err := provider.GetEventsFor(ctx, "orders", orderID)
//	if err != nil {
//		// handle error
//	}
//
//	event, err := eventstore.BuildStorableEventWithEmptyMetadata("OrderPlaced", time.Now(), payload)
//	committed, err := provider.Append(ctx, "orders", orderID, eventstore.Version(len(history)+1), event)
//	if errors.Is(err, eventstore.ErrVersionConflict) {
//		// reload and decide
//	}
package eventstore
