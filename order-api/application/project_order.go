package application

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/order-api/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// ProjectOrder folds the full order event stream into the authoritative
// projection and appends every applied event to the audit log. It plugs into
// the shared idempotent consumer as its Applier and never emits follow-ups.
type ProjectOrder struct {
	orders   domain.OrderRepository
	eventLog EventLog
	log      *zap.Logger
}

// NewProjectOrder creates a new ProjectOrder use case
func NewProjectOrder(orders domain.OrderRepository, eventLog EventLog, log *zap.Logger) *ProjectOrder {
	return &ProjectOrder{orders: orders, eventLog: eventLog, log: log}
}

// ConsumerID identifies this service in consumption records
func (uc *ProjectOrder) ConsumerID() string {
	return ConsumerID
}

// Apply advances the projection with one event
func (uc *ProjectOrder) Apply(ctx context.Context, event *events.Event) ([]*events.Event, error) {
	order, err := uc.orders.FindByID(ctx, event.OrderID)
	if err != nil {
		return nil, consumer.Transient(errors.Wrap(err, "load order"))
	}

	if order == nil {
		// An order created on another instance, or the row was lost: rebuild
		// the projection from the stream itself.
		if event.Type != events.OrderCreatedEvent {
			return nil, &saga.InvalidTransitionError{
				OrderID:   event.OrderID,
				From:      saga.StateNone,
				EventType: event.Type,
			}
		}
		order, err = uc.orderFromCreated(event)
		if err != nil {
			return nil, err
		}
	} else if err := order.ApplyEvent(event); err != nil {
		return nil, err
	}

	if err := uc.orders.Save(ctx, order); err != nil {
		return nil, consumer.Transient(errors.Wrap(err, "save order"))
	}
	if err := uc.eventLog.Append(ctx, event); err != nil {
		return nil, consumer.Transient(errors.Wrap(err, "append event"))
	}

	uc.log.Debug("order projected",
		zap.String("order_id", event.OrderID.String()),
		zap.String("state", string(order.State)),
	)
	return nil, nil
}

// orderFromCreated rebuilds the initial projection from an OrderCreated event
func (uc *ProjectOrder) orderFromCreated(event *events.Event) (*domain.Order, error) {
	var payload events.OrderCreatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, errors.Wrap(err, "parse order created payload")
	}

	order, err := domain.CreateOrder(
		event.OrderID,
		models.ID(payload.CustomerID),
		payload.LineItems,
		payload.Total,
		event.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "rebuild order from stream")
	}
	return order, nil
}
