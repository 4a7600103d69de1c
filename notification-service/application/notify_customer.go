package application

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/notification-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// notificationIDScope namespaces derived notification IDs
const notificationIDScope = ConsumerID + ".notification"

// NotifyCustomerCommand records a customer message for a terminal order state
type NotifyCustomerCommand struct {
	Event *events.Event
}

// NotifyCustomer records the customer-facing message once an order reaches a
// terminal state
type NotifyCustomer struct {
	notifications domain.NotificationRepository
	log           *zap.Logger
}

// NewNotifyCustomer creates a new NotifyCustomer use case
func NewNotifyCustomer(notifications domain.NotificationRepository, log *zap.Logger) *NotifyCustomer {
	return &NotifyCustomer{notifications: notifications, log: log}
}

// Execute records the notification for cmd's terminal event
func (uc *NotifyCustomer) Execute(ctx context.Context, cmd *NotifyCustomerCommand) error {
	var kind domain.NotificationKind
	var message string

	switch cmd.Event.Type {
	case events.OrderCompletedEvent:
		kind = domain.NotificationOrderCompleted
		message = fmt.Sprintf("Your order %s is confirmed.", cmd.Event.OrderID)
	case events.OrderCancelledEvent:
		var payload events.OrderCancelledPayload
		if err := cmd.Event.UnmarshalPayload(&payload); err != nil {
			return errors.Wrap(err, "parse order cancelled payload")
		}
		kind = domain.NotificationOrderCancelled
		message = fmt.Sprintf("Your order %s was cancelled: %s", cmd.Event.OrderID, payload.Reason)
	default:
		return nil
	}

	notification := domain.NewNotification(
		events.DeriveID(notificationIDScope, cmd.Event.ID, 0),
		cmd.Event.OrderID,
		kind,
		message,
	)
	if err := uc.notifications.Save(ctx, notification); err != nil {
		return errors.Wrap(err, "save notification")
	}

	uc.log.Info("customer notified",
		zap.String("order_id", cmd.Event.OrderID.String()),
		zap.String("kind", string(kind)),
	)
	return nil
}
