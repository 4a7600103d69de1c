package handlers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/payment-service/application"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// OrderEventHandlers applies the order event stream to the payment service's
// projection and reacts to InventoryReserved by capturing payment
type OrderEventHandlers struct {
	projections    saga.ProjectionRepository
	capturePayment *application.CapturePayment
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(
	projections saga.ProjectionRepository,
	capturePayment *application.CapturePayment,
) *OrderEventHandlers {
	return &OrderEventHandlers{
		projections:    projections,
		capturePayment: capturePayment,
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

	// Capture is in flight between InventoryReserved and its outcome.
	if event.Type == events.InventoryReservedEvent {
		if begun, ok := saga.Begin(next); ok {
			next = begun
		}
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

// react performs this service's reaction to its trigger events
func (h *OrderEventHandlers) react(ctx context.Context, event *events.Event) ([]*events.Event, error) {
	if event.Type != events.InventoryReservedEvent {
		return nil, nil
	}

	var payload events.InventoryReservedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, errors.Wrap(err, "parse inventory reserved payload")
	}

	return h.capturePayment.Execute(ctx, &application.CapturePaymentCommand{
		Event:   event,
		Payload: payload,
	})
}
