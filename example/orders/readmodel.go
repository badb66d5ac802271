package main

import (
	"context"
	"sort"
	"sync"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/projector"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

// OrderSummary is one row of the OrderList read model.
type OrderSummary struct {
	OrderID    string
	CustomerID string
	Items      int
	Status     string
	Version    eventstore.Version
}

// OrderList is an in-memory read model of all orders, kept up to date by a projector.
type OrderList struct {
	mu     sync.RWMutex
	orders map[string]OrderSummary
}

func NewOrderList() *OrderList {
	return &OrderList{orders: make(map[string]OrderSummary)}
}

// Subscriptions returns what the OrderList projector consumes.
func (l *OrderList) Subscriptions() []projector.Subscription {
	return []projector.Subscription{{
		Stream: fixtures.OrdersStream,
		EventTypes: []string{
			fixtures.OrderPlacedEventType,
			fixtures.ItemAddedEventType,
			fixtures.OrderShippedEventType,
			fixtures.OrderCanceledEventType,
		},
	}}
}

// Register installs the callbacks of the OrderList on p.
func (l *OrderList) Register(p *projector.Projector) error {
	callback := projector.On[fixtures.OrderEvent](fixtures.NewOrderCodec(), l.apply)

	for _, subscription := range l.Subscriptions() {
		for _, eventType := range subscription.EventTypes {
			if err := p.Handle(subscription.Stream, eventType, callback); err != nil {
				return err
			}
		}
	}

	return nil
}

// apply ignores events it has already seen, so a replay from an older bookmark is harmless.
func (l *OrderList) apply(_ context.Context, aggregateID string, event fixtures.OrderEvent, meta eventstore.EventMeta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := l.orders[aggregateID]
	if meta.Version <= summary.Version {
		return nil
	}

	summary.OrderID = aggregateID
	summary.Version = meta.Version

	switch e := event.(type) {
	case fixtures.OrderPlaced:
		summary.CustomerID = e.CustomerID
		summary.Status = fixtures.StatusPlaced
	case fixtures.ItemAdded:
		summary.Items += e.Quantity
	case fixtures.OrderShipped:
		summary.Status = fixtures.StatusShipped
	case fixtures.OrderCanceled:
		summary.Status = fixtures.StatusCanceled
	}

	l.orders[aggregateID] = summary

	return nil
}

// Get returns the summary of one order.
func (l *OrderList) Get(orderID string) (OrderSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary, ok := l.orders[orderID]

	return summary, ok
}

// CountByStatus returns the number of orders per status.
func (l *OrderList) CountByStatus() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int)
	for _, summary := range l.orders {
		counts[summary.Status]++
	}

	return counts
}

// All returns all summaries ordered by order id.
func (l *OrderList) All() []OrderSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := make([]OrderSummary, 0, len(l.orders))
	for _, summary := range l.orders {
		all = append(all, summary)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].OrderID < all[j].OrderID })

	return all
}

// SalesTally counts the ordered quantity per SKU.
type SalesTally struct {
	mu    sync.Mutex
	bySKU map[string]int
}

func NewSalesTally() *SalesTally {
	return &SalesTally{bySKU: make(map[string]int)}
}

// Register installs the callback of the SalesTally on p.
func (s *SalesTally) Register(p *projector.Projector) error {
	return p.Handle(fixtures.OrdersStream, fixtures.ItemAddedEventType,
		projector.On[fixtures.OrderEvent](fixtures.NewOrderCodec(), s.apply))
}

func (s *SalesTally) apply(_ context.Context, _ string, event fixtures.OrderEvent, _ eventstore.EventMeta) error {
	added, ok := event.(fixtures.ItemAdded)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bySKU[added.SKU] += added.Quantity

	return nil
}

// Total returns the ordered quantity of sku.
func (s *SalesTally) Total(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bySKU[sku]
}
