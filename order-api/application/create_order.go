package application

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/order-api/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// ConsumerID identifies this service in consumption records
const ConsumerID = "order-api"

// CreateOrderCommand represents the intake request for a new order
type CreateOrderCommand struct {
	CustomerID string                `json:"customer_id" validate:"required,uuid"`
	Currency   string                `json:"currency" validate:"required,len=3"`
	LineItems  []CreateOrderLineItem `json:"line_items" validate:"required,min=1,dive"`
}

// CreateOrderLineItem is one requested position
type CreateOrderLineItem struct {
	SKU       string `json:"sku" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"required,gt=0"`
}

// CreateOrderResponse returns the accepted order's identity
type CreateOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// CreateOrder accepts a new order: it persists the initial projection and
// publishes OrderCreated to start the saga
type CreateOrder struct {
	orders    domain.OrderRepository
	eventLog  EventLog
	publisher events.Publisher
	validate  *validator.Validate
	log       *zap.Logger
}

// NewCreateOrder creates a new CreateOrder use case
func NewCreateOrder(orders domain.OrderRepository, eventLog EventLog, publisher events.Publisher, log *zap.Logger) *CreateOrder {
	return &CreateOrder{
		orders:    orders,
		eventLog:  eventLog,
		publisher: publisher,
		validate:  validator.New(),
		log:       log,
	}
}

// Execute accepts the order and emits OrderCreated
func (uc *CreateOrder) Execute(ctx context.Context, cmd *CreateOrderCommand) (*CreateOrderResponse, error) {
	if err := uc.validate.Struct(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid command")
	}

	customerID, err := models.NewID(cmd.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid customer ID")
	}

	lineItems := make([]events.LineItem, len(cmd.LineItems))
	total := models.NewMoney(0, cmd.Currency)
	for i, item := range cmd.LineItems {
		lineItems[i] = events.LineItem{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: models.NewMoney(item.UnitPrice, cmd.Currency),
		}
		total, _ = total.Add(lineItems[i].UnitPrice.MultiplyQty(item.Quantity))
	}

	orderID := models.GenerateUUID()
	event, err := events.NewEvent(orderID, events.OrderCreatedEvent, events.OrderCreatedPayload{
		CustomerID: customerID.String(),
		LineItems:  lineItems,
		Total:      total,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build order created event")
	}

	// The projection starts at the event's position, so consuming the own
	// OrderCreated emission later is an exact duplicate and a no-op.
	order, err := domain.CreateOrder(orderID, customerID, lineItems, total, event.ID)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if err := uc.orders.Save(ctx, order); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	if err := uc.eventLog.Append(ctx, event); err != nil {
		return nil, errors.Wrap(err, "append order created")
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		return nil, errors.Wrap(err, "publish order created")
	}

	uc.log.Info("order accepted",
		zap.String("order_id", orderID.String()),
		zap.Int64("total", total.Amount),
	)

	return &CreateOrderResponse{
		OrderID: orderID.String(),
		Status:  string(order.State),
	}, nil
}
