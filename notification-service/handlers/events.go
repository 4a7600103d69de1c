package handlers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/notification-service/application"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// OrderEventHandlers applies the order event stream to the notification
// service's projection. It closes saga branches (OrderCompleted /
// OrderCancelled) and records customer notifications for terminal events.
type OrderEventHandlers struct {
	projections    saga.ProjectionRepository
	closeOrder     *application.CloseOrder
	notifyCustomer *application.NotifyCustomer
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(
	projections saga.ProjectionRepository,
	closeOrder *application.CloseOrder,
	notifyCustomer *application.NotifyCustomer,
) *OrderEventHandlers {
	return &OrderEventHandlers{
		projections:    projections,
		closeOrder:     closeOrder,
		notifyCustomer: notifyCustomer,
	}
}

// ConsumerID identifies this service in consumption records
func (h *OrderEventHandlers) ConsumerID() string {
	return application.ConsumerID
}

// Apply advances the projection with the event and returns the follow-up
// events to emit
func (h *OrderEventHandlers) Apply(ctx context.Context, event *events.Event) ([]*events.Event, error) {
	projection, err := h.projections.FindByOrderID(ctx, event.OrderID)
	if err != nil {
		return nil, consumer.Transient(errors.Wrap(err, "load projection"))
	}

	state, lastEventID := saga.StateNone, models.ID("")
	if projection != nil {
		state, lastEventID = projection.State, projection.LastEventID
	}

	next, err := saga.Apply(state, lastEventID, event)
	if errors.Is(err, saga.ErrDuplicateEvent) {
		return h.react(ctx, event)
	}
	if err != nil {
		return nil, err
	}

	followUps, err := h.react(ctx, event)
	if err != nil {
		return nil, err
	}

	if projection == nil {
		projection = saga.NewProjection(event.OrderID)
	}
	projection.Advance(event, next)
	if err := h.projections.Save(ctx, projection); err != nil {
		return nil, consumer.Transient(errors.Wrap(err, "save projection"))
	}

	return followUps, nil
}

// react closes saga branches and records notifications
func (h *OrderEventHandlers) react(ctx context.Context, event *events.Event) ([]*events.Event, error) {
	switch event.Type {
	case events.PaymentCapturedEvent,
		events.OrderValidationFailedEvent,
		events.InventoryReservationFailedEvent,
		events.InventoryReleasedEvent:
		return h.closeOrder.Execute(ctx, &application.CloseOrderCommand{Event: event})

	case events.OrderCompletedEvent, events.OrderCancelledEvent:
		if err := h.notifyCustomer.Execute(ctx, &application.NotifyCustomerCommand{Event: event}); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, nil
	}
}
