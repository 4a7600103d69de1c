package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

func newCreatedEvent(t *testing.T, payload events.OrderCreatedPayload) *events.Event {
	t.Helper()
	event, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent, payload)
	require.NoError(t, err)
	return event
}

func TestValidateOrder_Execute(t *testing.T) {
	item := func(sku string, qty int, price int64) events.LineItem {
		return events.LineItem{SKU: sku, Quantity: qty, UnitPrice: models.NewMoney(price, "USD")}
	}

	tests := []struct {
		name     string
		payload  events.OrderCreatedPayload
		wantType events.Type
		wantCode string
	}{
		{
			name: "acceptable order is validated",
			payload: events.OrderCreatedPayload{
				CustomerID: "550e8400-e29b-41d4-a716-446655440010",
				LineItems:  []events.LineItem{item("sku-1", 2, 1500), item("sku-2", 1, 500)},
				Total:      models.NewMoney(3500, "USD"),
			},
			wantType: events.OrderValidatedEvent,
		},
		{
			name: "missing customer is rejected",
			payload: events.OrderCreatedPayload{
				LineItems: []events.LineItem{item("sku-1", 1, 1000)},
				Total:     models.NewMoney(1000, "USD"),
			},
			wantType: events.OrderValidationFailedEvent,
			wantCode: "invalid_order",
		},
		{
			name: "empty line items are rejected",
			payload: events.OrderCreatedPayload{
				CustomerID: "550e8400-e29b-41d4-a716-446655440010",
				Total:      models.NewMoney(1000, "USD"),
			},
			wantType: events.OrderValidationFailedEvent,
			wantCode: "invalid_order",
		},
		{
			name: "zero quantity is rejected",
			payload: events.OrderCreatedPayload{
				CustomerID: "550e8400-e29b-41d4-a716-446655440010",
				LineItems:  []events.LineItem{item("sku-1", 0, 1000)},
				Total:      models.NewMoney(0, "USD"),
			},
			wantType: events.OrderValidationFailedEvent,
			wantCode: "invalid_order",
		},
		{
			name: "line item currency mismatch is rejected",
			payload: events.OrderCreatedPayload{
				CustomerID: "550e8400-e29b-41d4-a716-446655440010",
				LineItems: []events.LineItem{
					{SKU: "sku-1", Quantity: 1, UnitPrice: models.NewMoney(1000, "EUR")},
				},
				Total: models.NewMoney(1000, "USD"),
			},
			wantType: events.OrderValidationFailedEvent,
			wantCode: "currency_mismatch",
		},
		{
			name: "declared total mismatch is rejected",
			payload: events.OrderCreatedPayload{
				CustomerID: "550e8400-e29b-41d4-a716-446655440010",
				LineItems:  []events.LineItem{item("sku-1", 2, 1500)},
				Total:      models.NewMoney(9999, "USD"),
			},
			wantType: events.OrderValidationFailedEvent,
			wantCode: "total_mismatch",
		},
	}

	uc := NewValidateOrder(zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := newCreatedEvent(t, tt.payload)
			followUps, err := uc.Execute(context.Background(), &ValidateOrderCommand{
				Event:   event,
				Payload: tt.payload,
			})
			require.NoError(t, err)
			require.Len(t, followUps, 1)

			out := followUps[0]
			assert.Equal(t, tt.wantType, out.Type)
			assert.Equal(t, event.OrderID, out.OrderID)
			assert.Equal(t, event.ID, out.CausationID)
			assert.Equal(t, events.DeriveID(ConsumerID, event.ID, 0), out.ID,
				"the outcome ID must be derived so redeliveries reproduce it")

			if tt.wantCode != "" {
				var payload events.OrderValidationFailedPayload
				require.NoError(t, out.UnmarshalPayload(&payload))
				assert.Equal(t, tt.wantCode, payload.Code)
				assert.NotEmpty(t, payload.Reason)
			}
		})
	}
}

func TestValidateOrder_SameInputSameOutcomeID(t *testing.T) {
	payload := events.OrderCreatedPayload{
		CustomerID: "550e8400-e29b-41d4-a716-446655440010",
		LineItems:  []events.LineItem{{SKU: "sku-1", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")}},
		Total:      models.NewMoney(1000, "USD"),
	}
	event := newCreatedEvent(t, payload)
	uc := NewValidateOrder(zap.NewNop())

	first, err := uc.Execute(context.Background(), &ValidateOrderCommand{Event: event, Payload: payload})
	require.NoError(t, err)
	second, err := uc.Execute(context.Background(), &ValidateOrderCommand{Event: event, Payload: payload})
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
}
