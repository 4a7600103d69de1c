package handlers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/inventory-service/application"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// OrderEventHandlers applies the order event stream to the inventory
// service's projection and reacts to OrderValidated (reserve) and
// ReleaseInventory (compensate).
type OrderEventHandlers struct {
	projections  saga.ProjectionRepository
	reserveStock *application.ReserveStock
	releaseStock *application.ReleaseStock
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(
	projections saga.ProjectionRepository,
	reserveStock *application.ReserveStock,
	releaseStock *application.ReleaseStock,
) *OrderEventHandlers {
	return &OrderEventHandlers{
		projections:  projections,
		reserveStock: reserveStock,
		releaseStock: releaseStock,
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

	// Reservation work is in flight between OrderValidated and its outcome.
	if event.Type == events.OrderValidatedEvent {
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
	switch event.Type {
	case events.OrderValidatedEvent:
		var payload events.OrderValidatedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return nil, errors.Wrap(err, "parse order validated payload")
		}
		return h.reserveStock.Execute(ctx, &application.ReserveStockCommand{
			Event:   event,
			Payload: payload,
		})

	case events.ReleaseInventoryEvent:
		var payload events.ReleaseInventoryPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return nil, errors.Wrap(err, "parse release inventory payload")
		}
		return h.releaseStock.Execute(ctx, &application.ReleaseStockCommand{
			Event:   event,
			Payload: payload,
		})

	default:
		return nil, nil
	}
}
