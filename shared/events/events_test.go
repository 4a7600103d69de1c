package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

func TestNewFollowup_DeterministicID(t *testing.T) {
	cause, err := NewEvent("550e8400-e29b-41d4-a716-446655440000", OrderCreatedEvent, OrderCreatedPayload{
		CustomerID: "550e8400-e29b-41d4-a716-446655440010",
		Total:      models.NewMoney(1000, "USD"),
		LineItems: []LineItem{
			{SKU: "sku-1", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")},
		},
	})
	require.NoError(t, err)

	first, err := NewFollowup("validation-service", cause, 0, OrderValidatedEvent, OrderValidatedPayload{})
	require.NoError(t, err)
	second, err := NewFollowup("validation-service", cause, 0, OrderValidatedEvent, OrderValidatedPayload{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same (consumer, cause, n) must derive the same ID")
	assert.Equal(t, cause.ID, first.CausationID)
	assert.Equal(t, cause.CorrelationID, first.CorrelationID)

	// Different consumer, index, or cause each yield a different identity.
	otherConsumer, err := NewFollowup("inventory-service", cause, 0, OrderValidatedEvent, OrderValidatedPayload{})
	require.NoError(t, err)
	otherIndex, err := NewFollowup("validation-service", cause, 1, OrderValidatedEvent, OrderValidatedPayload{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, otherConsumer.ID)
	assert.NotEqual(t, first.ID, otherIndex.ID)
}

func TestDeriveID_DistinctScopes(t *testing.T) {
	causeID := models.ID("550e8400-e29b-41d4-a716-446655440001")

	eventID := DeriveID("inventory-service", causeID, 0)
	entityID := DeriveID("inventory-service.reservation", causeID, 0)

	assert.NotEqual(t, eventID, entityID)
	assert.Equal(t, eventID, DeriveID("inventory-service", causeID, 0))
}

func TestDecode(t *testing.T) {
	valid, err := NewEvent("550e8400-e29b-41d4-a716-446655440000", OrderCancelledEvent, OrderCancelledPayload{Reason: "validation failed"})
	require.NoError(t, err)
	validRaw, err := Encode(valid)
	require.NoError(t, err)

	mutate := func(fn func(m map[string]interface{})) []byte {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(validRaw, &m))
		fn(m)
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		return raw
	}

	tests := []struct {
		name    string
		raw     []byte
		wantErr string
	}{
		{
			name: "valid event round-trips",
			raw:  validRaw,
		},
		{
			name:    "malformed envelope",
			raw:     []byte("{not json"),
			wantErr: "malformed envelope",
		},
		{
			name:    "missing event id",
			raw:     mutate(func(m map[string]interface{}) { delete(m, "event_id") }),
			wantErr: "missing event_id",
		},
		{
			name:    "missing order id",
			raw:     mutate(func(m map[string]interface{}) { delete(m, "order_id") }),
			wantErr: "missing order_id",
		},
		{
			name:    "unknown event type",
			raw:     mutate(func(m map[string]interface{}) { m["type"] = "order.teleported" }),
			wantErr: "unknown event type",
		},
		{
			name:    "future schema version fails closed",
			raw:     mutate(func(m map[string]interface{}) { m["schema_version"] = 99 }),
			wantErr: "newer than supported",
		},
		{
			name: "unknown payload field",
			raw: mutate(func(m map[string]interface{}) {
				m["payload"] = map[string]interface{}{"reason": "x", "extra": true}
			}),
			wantErr: "invalid order.cancelled payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode(tt.raw)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, valid.ID, event.ID)
				assert.Equal(t, valid.Type, event.Type)
				return
			}

			require.Error(t, err)
			assert.True(t, IsDecodeError(err), "decode failures must be *DecodeError")
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, event)
		})
	}
}

func TestKnownType(t *testing.T) {
	assert.True(t, KnownType(OrderCreatedEvent))
	assert.True(t, KnownType(InventoryReleasedEvent))
	assert.False(t, KnownType(Type("order.teleported")))
}
