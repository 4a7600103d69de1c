package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/order-api/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// ErrOrderNotFound is returned when no order exists for the requested ID
var ErrOrderNotFound = errors.New("order not found")

// GetOrderQuery requests one order by ID
type GetOrderQuery struct {
	OrderID string `json:"order_id"`
}

// OrderLineItemView is one position in the response
type OrderLineItemView struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderView is the API representation of an order
type OrderView struct {
	OrderID       string              `json:"order_id"`
	CustomerID    string              `json:"customer_id"`
	LineItems     []OrderLineItemView `json:"line_items"`
	Total         int64               `json:"total"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	ReservationID string              `json:"reservation_id,omitempty"`
	PaymentID     string              `json:"payment_id,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// GetOrder returns one order's current projection. Callers poll it to learn
// when the saga reached completed or cancelled.
type GetOrder struct {
	orders domain.OrderRepository
}

// NewGetOrder creates a new GetOrder use case
func NewGetOrder(orders domain.OrderRepository) *GetOrder {
	return &GetOrder{orders: orders}
}

// Execute loads the order view
func (uc *GetOrder) Execute(ctx context.Context, query *GetOrderQuery) (*OrderView, error) {
	orderID, err := models.NewID(query.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}

	order, err := uc.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	return toOrderView(order), nil
}

func toOrderView(order *domain.Order) *OrderView {
	view := &OrderView{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		Total:         order.Total.Amount,
		Currency:      order.Total.Currency,
		Status:        string(order.State),
		ReservationID: order.ReservationID.String(),
		PaymentID:     order.PaymentID.String(),
		FailureReason: order.FailureReason,
	}
	for _, item := range order.LineItems {
		view.LineItems = append(view.LineItems, OrderLineItemView{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Amount,
		})
	}
	return view
}

// ListOrderEventsQuery requests an order's event history
type ListOrderEventsQuery struct {
	OrderID string `json:"order_id"`
}

// EventLog is the append-only audit stream of order events
type EventLog interface {
	Append(ctx context.Context, event *events.Event) error
	ListByOrder(ctx context.Context, orderID models.ID) ([]*events.Event, error)
}

// ListOrderEvents returns the full event history of one order
type ListOrderEvents struct {
	eventLog EventLog
}

// NewListOrderEvents creates a new ListOrderEvents use case
func NewListOrderEvents(eventLog EventLog) *ListOrderEvents {
	return &ListOrderEvents{eventLog: eventLog}
}

// Execute loads the order's events in stream order
func (uc *ListOrderEvents) Execute(ctx context.Context, query *ListOrderEventsQuery) ([]*events.Event, error) {
	orderID, err := models.NewID(query.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}
	return uc.eventLog.ListByOrder(ctx, orderID)
}
