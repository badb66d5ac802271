// Package domain reconstructs aggregates by folding their stored events and dispatches
// commands against them under optimistic concurrency.
//
// A Domain is bound to one stream of an eventstore.Provider. GetAggregate folds the
// aggregate's history from its initial state, or, on a cache hit, only the events stored
// after the cached position. Execute loads the aggregate, runs the handler registered for
// the command type, appends the resulting events with the next expected version, and folds
// the committed events into the returned aggregate.
//
// Version conflicts are returned unchanged. Retrying is a caller decision, see RetryOnConflict.
//
// Basic usage:
//
//	cache, err := domain.NewLRUCache[Order](1024)
//	orders, err := domain.New(
//		domain.Options[OrderEvent, Order]{
//			Stream:   "orders",
//			Provider: provider,
//			Codec:    codec,
//			Fold:     foldOrder,
//		},
//		map[string]domain.CommandHandler[OrderEvent, Order, OrderCommand]{
//			"PlaceOrder": domain.Typed[OrderEvent, Order, OrderCommand](placeOrder),
//		},
//		domain.WithCache(cache),
//	)
//
//	order, err := orders.Execute(ctx, orderID, PlaceOrder{CustomerID: "c-1"})
package domain
