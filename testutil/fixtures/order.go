package fixtures

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

const (
	StatusNew      = ""
	StatusPlaced   = "placed"
	StatusShipped  = "shipped"
	StatusCanceled = "canceled"
)

var (
	ErrOrderAlreadyPlaced = errors.New("order was already placed")
	ErrOrderNotOpen       = errors.New("order is not open")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// Order is the aggregate state of the orders stream.
type Order struct {
	CustomerID   string
	Status       string
	ItemCount    int
	Lines        int
	LastPosition eventstore.Position
}

// FoldOrder folds one OrderEvent into an Order.
func FoldOrder(event OrderEvent, state Order, meta eventstore.EventMeta) Order {
	state.LastPosition = meta.Position

	switch e := event.(type) {
	case OrderPlaced:
		state.CustomerID = e.CustomerID
		state.Status = StatusPlaced
	case ItemAdded:
		state.ItemCount += e.Quantity
		state.Lines++
	case OrderShipped:
		state.Status = StatusShipped
	case OrderCanceled:
		state.Status = StatusCanceled
	}

	return state
}

// NewOrderCodec returns a JSONCodec knowing all OrderEvent types.
func NewOrderCodec() *domain.JSONCodec[OrderEvent] {
	return domain.NewJSONCodec[OrderEvent]().
		Register(OrderPlacedEventType, domain.DecodeAs[OrderEvent, OrderPlaced]()).
		Register(ItemAddedEventType, domain.DecodeAs[OrderEvent, ItemAdded]()).
		Register(OrderShippedEventType, domain.DecodeAs[OrderEvent, OrderShipped]()).
		Register(OrderCanceledEventType, domain.DecodeAs[OrderEvent, OrderCanceled]())
}

// OrderCommand is implemented by all commands of the orders domain.
type OrderCommand interface {
	CommandType() string
}

type PlaceOrder struct{ CustomerID string }

func (PlaceOrder) CommandType() string { return "PlaceOrder" }

type AddItem struct {
	SKU      string
	Quantity int
}

func (AddItem) CommandType() string { return "AddItem" }

type ShipOrder struct{}

func (ShipOrder) CommandType() string { return "ShipOrder" }

type CancelOrder struct{ Reason string }

func (CancelOrder) CommandType() string { return "CancelOrder" }

// OrderHandlers returns the command handlers of the orders domain, stamping events with clock.
func OrderHandlers(clock func() time.Time) map[string]domain.CommandHandler[OrderEvent, Order, OrderCommand] {
	return map[string]domain.CommandHandler[OrderEvent, Order, OrderCommand]{
		PlaceOrder{}.CommandType(): domain.Typed[OrderEvent, Order, OrderCommand](
			func(_ context.Context, cmd PlaceOrder, order domain.Aggregate[Order]) ([]OrderEvent, error) {
				if order.State.Status != StatusNew {
					return nil, ErrOrderAlreadyPlaced
				}

				return []OrderEvent{OrderPlaced{OrderID: order.AggregateID, CustomerID: cmd.CustomerID, OccurredAt: clock()}}, nil
			}),

		AddItem{}.CommandType(): domain.Typed[OrderEvent, Order, OrderCommand](
			func(_ context.Context, cmd AddItem, order domain.Aggregate[Order]) ([]OrderEvent, error) {
				if order.State.Status != StatusPlaced {
					return nil, ErrOrderNotOpen
				}

				if cmd.Quantity <= 0 {
					return nil, ErrInvalidQuantity
				}

				return []OrderEvent{ItemAdded{OrderID: order.AggregateID, SKU: cmd.SKU, Quantity: cmd.Quantity, OccurredAt: clock()}}, nil
			}),

		ShipOrder{}.CommandType(): domain.Typed[OrderEvent, Order, OrderCommand](
			func(_ context.Context, _ ShipOrder, order domain.Aggregate[Order]) ([]OrderEvent, error) {
				if order.State.Status == StatusShipped {
					return nil, nil
				}

				if order.State.Status != StatusPlaced {
					return nil, ErrOrderNotOpen
				}

				return []OrderEvent{OrderShipped{OrderID: order.AggregateID, OccurredAt: clock()}}, nil
			}),

		CancelOrder{}.CommandType(): domain.Typed[OrderEvent, Order, OrderCommand](
			func(_ context.Context, cmd CancelOrder, order domain.Aggregate[Order]) ([]OrderEvent, error) {
				if order.State.Status != StatusPlaced {
					return nil, ErrOrderNotOpen
				}

				return []OrderEvent{OrderCanceled{OrderID: order.AggregateID, Reason: cmd.Reason, OccurredAt: clock()}}, nil
			}),
	}
}
