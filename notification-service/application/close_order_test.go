package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/notification-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/notification-service/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

func newStreamEvent(t *testing.T, typ events.Type, payload interface{}) *events.Event {
	t.Helper()
	event, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", typ, payload)
	require.NoError(t, err)
	return event
}

func TestCloseOrder_Execute(t *testing.T) {
	uc := NewCloseOrder(zap.NewNop())

	tests := []struct {
		name       string
		event      *events.Event
		wantType   events.Type
		wantReason string
		closes     bool
	}{
		{
			name:     "payment captured completes the order",
			event:    newStreamEvent(t, events.PaymentCapturedEvent, events.PaymentCapturedPayload{PaymentID: models.GenerateUUID()}),
			wantType: events.OrderCompletedEvent,
			closes:   true,
		},
		{
			name:       "validation failure cancels immediately",
			event:      newStreamEvent(t, events.OrderValidationFailedEvent, events.OrderValidationFailedPayload{Reason: "bad total", Code: "total_mismatch"}),
			wantType:   events.OrderCancelledEvent,
			wantReason: "validation failed: bad total",
			closes:     true,
		},
		{
			name:       "reservation failure cancels immediately",
			event:      newStreamEvent(t, events.InventoryReservationFailedEvent, events.InventoryReservationFailedPayload{Reason: "out of stock", SKU: "sku-1"}),
			wantType:   events.OrderCancelledEvent,
			wantReason: "reservation failed: out of stock",
			closes:     true,
		},
		{
			name:       "inventory released cancels after compensation",
			event:      newStreamEvent(t, events.InventoryReleasedEvent, events.InventoryReleasedPayload{}),
			wantType:   events.OrderCancelledEvent,
			wantReason: "payment failed, reservation released",
			closes:     true,
		},
		{
			name:  "payment failure alone does not cancel yet",
			event: newStreamEvent(t, events.PaymentFailedEvent, events.PaymentFailedPayload{Code: "limit_exceeded"}),
		},
		{
			name:  "intermediate event closes nothing",
			event: newStreamEvent(t, events.OrderValidatedEvent, events.OrderValidatedPayload{}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			followUps, err := uc.Execute(context.Background(), &CloseOrderCommand{Event: tt.event})
			require.NoError(t, err)

			if !tt.closes {
				assert.Empty(t, followUps)
				return
			}

			require.Len(t, followUps, 1)
			out := followUps[0]
			assert.Equal(t, tt.wantType, out.Type)
			assert.Equal(t, events.DeriveID(ConsumerID, tt.event.ID, 0), out.ID)

			if tt.wantReason != "" {
				var payload events.OrderCancelledPayload
				require.NoError(t, out.UnmarshalPayload(&payload))
				assert.Equal(t, tt.wantReason, payload.Reason)
			}
		})
	}
}

func TestNotifyCustomer_Execute(t *testing.T) {
	notifications := infrastructure.NewMemoryNotificationRepository()
	uc := NewNotifyCustomer(notifications, zap.NewNop())

	cancelled := newStreamEvent(t, events.OrderCancelledEvent, events.OrderCancelledPayload{Reason: "validation failed"})
	require.NoError(t, uc.Execute(context.Background(), &NotifyCustomerCommand{Event: cancelled}))

	recorded, err := notifications.FindByOrderID(context.Background(), cancelled.OrderID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.NotificationOrderCancelled, recorded[0].Kind)
	assert.Equal(t, events.DeriveID(notificationIDScope, cancelled.ID, 0), recorded[0].ID)
	assert.Contains(t, recorded[0].Message, "validation failed")

	// Redelivery keeps a single notification.
	require.NoError(t, uc.Execute(context.Background(), &NotifyCustomerCommand{Event: cancelled}))
	recorded, err = notifications.FindByOrderID(context.Background(), cancelled.OrderID)
	require.NoError(t, err)
	assert.Len(t, recorded, 1)

	completed := newStreamEvent(t, events.OrderCompletedEvent, events.OrderCompletedPayload{})
	require.NoError(t, uc.Execute(context.Background(), &NotifyCustomerCommand{Event: completed}))

	recorded, err = notifications.FindByOrderID(context.Background(), completed.OrderID)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Equal(t, domain.NotificationOrderCompleted, recorded[1].Kind)
}
