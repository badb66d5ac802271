package fixtures

import (
	"time"
)

const (
	OrdersStream    = "orders"
	CustomersStream = "customers"

	OrderPlacedEventType     = "OrderPlaced"
	ItemAddedEventType       = "ItemAdded"
	OrderShippedEventType    = "OrderShipped"
	OrderCanceledEventType   = "OrderCanceled"
	CustomerJoinedEventType  = "CustomerJoined"
	CustomerRenamedEventType = "CustomerRenamed"
)

// OrderEvent is implemented by all events of the orders stream.
type OrderEvent interface {
	EventType() string
	HasOccurredAt() time.Time
}

type OrderPlaced struct {
	OrderID    string
	CustomerID string
	OccurredAt time.Time
}

func (e OrderPlaced) EventType() string        { return OrderPlacedEventType }
func (e OrderPlaced) HasOccurredAt() time.Time { return e.OccurredAt }

type ItemAdded struct {
	OrderID    string
	SKU        string
	Quantity   int
	OccurredAt time.Time
}

func (e ItemAdded) EventType() string        { return ItemAddedEventType }
func (e ItemAdded) HasOccurredAt() time.Time { return e.OccurredAt }

type OrderShipped struct {
	OrderID    string
	OccurredAt time.Time
}

func (e OrderShipped) EventType() string        { return OrderShippedEventType }
func (e OrderShipped) HasOccurredAt() time.Time { return e.OccurredAt }

type OrderCanceled struct {
	OrderID    string
	Reason     string
	OccurredAt time.Time
}

func (e OrderCanceled) EventType() string        { return OrderCanceledEventType }
func (e OrderCanceled) HasOccurredAt() time.Time { return e.OccurredAt }

// CustomerJoined lives on the customers stream and is used for multi-stream projections.
type CustomerJoined struct {
	CustomerID string
	Name       string
	OccurredAt time.Time
}

func (e CustomerJoined) EventType() string        { return CustomerJoinedEventType }
func (e CustomerJoined) HasOccurredAt() time.Time { return e.OccurredAt }
