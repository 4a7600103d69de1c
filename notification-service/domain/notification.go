package domain

import (
	"context"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// NotificationKind classifies the customer-facing message
type NotificationKind string

const (
	NotificationOrderCompleted NotificationKind = "order_completed"
	NotificationOrderCancelled NotificationKind = "order_cancelled"
)

// Notification is one customer message recorded for a terminal order state.
// Its ID is derived from the triggering event, so redeliveries resolve to the
// same notification instead of messaging the customer twice.
type Notification struct {
	ID         models.ID
	OrderID    models.ID
	Kind       NotificationKind
	Message    string
	Timestamps models.Timestamps
}

// NewNotification creates a notification
func NewNotification(id, orderID models.ID, kind NotificationKind, message string) *Notification {
	return &Notification{
		ID:         id,
		OrderID:    orderID,
		Kind:       kind,
		Message:    message,
		Timestamps: models.NewTimestamps(),
	}
}

// NotificationRepository persists notifications. Save is idempotent on
// notification ID.
type NotificationRepository interface {
	Save(ctx context.Context, notification *Notification) error
	FindByOrderID(ctx context.Context, orderID models.ID) ([]*Notification, error)
}
