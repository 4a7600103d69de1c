package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// ConsumerID identifies this service in consumption records and derived
// follow-up event IDs
const ConsumerID = "notification-service"

// CloseOrderCommand carries the event that terminates a saga branch
type CloseOrderCommand struct {
	Event *events.Event
}

// CloseOrder emits the terminal event of a saga branch. PaymentCaptured
// closes the success path with OrderCompleted; each failure branch closes
// with OrderCancelled once its compensation (if any) has finished.
type CloseOrder struct {
	log *zap.Logger
}

// NewCloseOrder creates a new CloseOrder use case
func NewCloseOrder(log *zap.Logger) *CloseOrder {
	return &CloseOrder{log: log}
}

// Execute returns the terminal follow-up event for cmd's trigger, or nothing
// when the trigger does not close a branch
func (uc *CloseOrder) Execute(ctx context.Context, cmd *CloseOrderCommand) ([]*events.Event, error) {
	switch cmd.Event.Type {
	case events.PaymentCapturedEvent:
		completed, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.OrderCompletedEvent,
			events.OrderCompletedPayload{CompletedAt: time.Now().UTC()})
		if err != nil {
			return nil, errors.Wrap(err, "build order completed event")
		}
		return []*events.Event{completed}, nil

	case events.OrderValidationFailedEvent, events.InventoryReservationFailedEvent, events.InventoryReleasedEvent:
		cancelled, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.OrderCancelledEvent,
			events.OrderCancelledPayload{Reason: cancelReason(cmd.Event)})
		if err != nil {
			return nil, errors.Wrap(err, "build order cancelled event")
		}
		uc.log.Info("order cancelled",
			zap.String("order_id", cmd.Event.OrderID.String()),
			zap.String("cause", cmd.Event.Type.String()),
		)
		return []*events.Event{cancelled}, nil
	}

	return nil, nil
}

// cancelReason maps the closing trigger to an operator-readable reason
func cancelReason(event *events.Event) string {
	switch event.Type {
	case events.OrderValidationFailedEvent:
		var payload events.OrderValidationFailedPayload
		if err := event.UnmarshalPayload(&payload); err == nil {
			return fmt.Sprintf("validation failed: %s", payload.Reason)
		}
		return "validation failed"
	case events.InventoryReservationFailedEvent:
		var payload events.InventoryReservationFailedPayload
		if err := event.UnmarshalPayload(&payload); err == nil {
			return fmt.Sprintf("reservation failed: %s", payload.Reason)
		}
		return "reservation failed"
	case events.InventoryReleasedEvent:
		return "payment failed, reservation released"
	}
	return "order closed"
}
