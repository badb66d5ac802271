// Package projector delivers the events of one or more streams to registered callbacks
// and tracks progress in a named bookmark persisted by an eventstore.Provider.
//
// A Projector polls Provider.GetEventsFrom starting after its bookmark, dispatches each event
// in ascending position order to the callback registered for its (stream, event type) Key
// and then advances the bookmark once per batch. Events without a callback are skipped but
// still advance the bookmark.
//
// When a callback fails, the batch stops at the failing event, the bookmark advances to the
// event before it and RunOnce returns the error. The failing event is delivered again on the
// next run, so callbacks should be idempotent.
//
// Example:
//
//	orders, err := projector.New("order-summary", provider, []projector.Subscription{
//		{Stream: "orders", EventTypes: []string{"OrderPlaced", "ItemAdded"}},
//	})
//	if err != nil {
//		return err
//	}
//
//	err = orders.Handle("orders", "OrderPlaced", projector.On(codec, onOrderPlaced))
//	if err != nil {
//		return err
//	}
//
//	if err := orders.Start(ctx); err != nil {
//		return err
//	}
//	defer orders.Wait()
//	defer orders.Stop()
package projector
