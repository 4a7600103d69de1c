package handlers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
	"github.com/NullPoint3rDev/event-driven-order/validation-service/application"
)

// OrderEventHandlers applies the order event stream to the validation
// service's projection and reacts to OrderCreated by validating the order.
// It plugs into the shared idempotent consumer as its Applier.
type OrderEventHandlers struct {
	projections   saga.ProjectionRepository
	validateOrder *application.ValidateOrder
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(
	projections saga.ProjectionRepository,
	validateOrder *application.ValidateOrder,
) *OrderEventHandlers {
	return &OrderEventHandlers{
		projections:   projections,
		validateOrder: validateOrder,
	}
}

// ConsumerID identifies this service in consumption records
func (h *OrderEventHandlers) ConsumerID() string {
	return application.ConsumerID
}

// Apply advances the projection with the event and returns the follow-up
// events to emit. An exact redelivery of the last applied event regenerates
// the same follow-ups instead of re-running the transition.
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

	// Once validation is in flight the projection holds the local
	// in-progress marker rather than the stream state.
	if event.Type == events.OrderCreatedEvent {
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

// react performs this service's reaction to its trigger events. The result is
// deterministic for a given event, so redeliveries reproduce identical
// follow-up IDs.
func (h *OrderEventHandlers) react(ctx context.Context, event *events.Event) ([]*events.Event, error) {
	if event.Type != events.OrderCreatedEvent {
		return nil, nil
	}

	var payload events.OrderCreatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, errors.Wrap(err, "parse order created payload")
	}

	return h.validateOrder.Execute(ctx, &application.ValidateOrderCommand{
		Event:   event,
		Payload: payload,
	})
}
