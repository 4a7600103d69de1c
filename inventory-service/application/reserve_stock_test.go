package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/inventory-service/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

func newValidatedEvent(t *testing.T, payload events.OrderValidatedPayload) *events.Event {
	t.Helper()
	created, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent, events.OrderCreatedPayload{})
	require.NoError(t, err)
	validated, err := events.NewFollowup("validation-service", created, 0, events.OrderValidatedEvent, payload)
	require.NoError(t, err)
	return validated
}

func TestReserveStock_Execute(t *testing.T) {
	payload := events.OrderValidatedPayload{
		LineItems: []events.LineItem{
			{SKU: "sku-1", Quantity: 2, UnitPrice: models.NewMoney(1500, "USD")},
		},
		Total: models.NewMoney(3000, "USD"),
	}
	event := newValidatedEvent(t, payload)

	stock := infrastructure.NewMemoryStockRepository(map[string]int{"sku-1": 5})
	uc := NewReserveStock(stock, zap.NewNop())

	followUps, err := uc.Execute(context.Background(), &ReserveStockCommand{Event: event, Payload: payload})
	require.NoError(t, err)
	require.Len(t, followUps, 1)

	out := followUps[0]
	assert.Equal(t, events.InventoryReservedEvent, out.Type)
	assert.Equal(t, events.DeriveID(ConsumerID, event.ID, 0), out.ID)
	assert.Equal(t, 3, stock.Available("sku-1"))

	var reserved events.InventoryReservedPayload
	require.NoError(t, out.UnmarshalPayload(&reserved))
	assert.Equal(t, events.DeriveID(reservationIDScope, event.ID, 0), reserved.ReservationID)
	assert.Equal(t, payload.Total, reserved.Total)

	// Redelivery: the reservation already exists, stock is not held twice and
	// the emitted identity is unchanged.
	again, err := uc.Execute(context.Background(), &ReserveStockCommand{Event: event, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, out.ID, again[0].ID)
	assert.Equal(t, 3, stock.Available("sku-1"))
}

func TestReserveStock_Shortage(t *testing.T) {
	payload := events.OrderValidatedPayload{
		LineItems: []events.LineItem{
			{SKU: "sku-1", Quantity: 10, UnitPrice: models.NewMoney(1500, "USD")},
		},
		Total: models.NewMoney(15000, "USD"),
	}
	event := newValidatedEvent(t, payload)

	stock := infrastructure.NewMemoryStockRepository(map[string]int{"sku-1": 3})
	uc := NewReserveStock(stock, zap.NewNop())

	followUps, err := uc.Execute(context.Background(), &ReserveStockCommand{Event: event, Payload: payload})
	require.NoError(t, err, "shortage is a saga branch, not a failure")
	require.Len(t, followUps, 1)

	out := followUps[0]
	assert.Equal(t, events.InventoryReservationFailedEvent, out.Type)
	assert.NotEqual(t, events.DeriveID(ConsumerID, event.ID, 0), out.ID,
		"failure branch must not share the success branch identity")
	assert.Equal(t, events.DeriveID(ConsumerID, event.ID, 1), out.ID)
	assert.Equal(t, 3, stock.Available("sku-1"), "no stock held on shortage")

	var failed events.InventoryReservationFailedPayload
	require.NoError(t, out.UnmarshalPayload(&failed))
	assert.Equal(t, "sku-1", failed.SKU)
	assert.NotEmpty(t, failed.Reason)
}

func TestReleaseStock_Execute(t *testing.T) {
	payload := events.OrderValidatedPayload{
		LineItems: []events.LineItem{
			{SKU: "sku-1", Quantity: 2, UnitPrice: models.NewMoney(1500, "USD")},
		},
		Total: models.NewMoney(3000, "USD"),
	}
	validated := newValidatedEvent(t, payload)

	stock := infrastructure.NewMemoryStockRepository(map[string]int{"sku-1": 5})
	reserve := NewReserveStock(stock, zap.NewNop())
	release := NewReleaseStock(stock, zap.NewNop())

	_, err := reserve.Execute(context.Background(), &ReserveStockCommand{Event: validated, Payload: payload})
	require.NoError(t, err)
	require.Equal(t, 3, stock.Available("sku-1"))

	releaseReq, err := events.NewFollowup("payment-service", validated, 2, events.ReleaseInventoryEvent,
		events.ReleaseInventoryPayload{Reason: "payment capture declined"})
	require.NoError(t, err)

	followUps, err := release.Execute(context.Background(), &ReleaseStockCommand{
		Event:   releaseReq,
		Payload: events.ReleaseInventoryPayload{Reason: "payment capture declined"},
	})
	require.NoError(t, err)
	require.Len(t, followUps, 1)
	assert.Equal(t, events.InventoryReleasedEvent, followUps[0].Type)
	assert.Equal(t, 5, stock.Available("sku-1"), "held stock returns to the pool")

	var released events.InventoryReleasedPayload
	require.NoError(t, followUps[0].UnmarshalPayload(&released))
	assert.Equal(t, events.DeriveID(reservationIDScope, validated.ID, 0), released.ReservationID)

	// Releasing again is a converged no-op with the same identity.
	again, err := release.Execute(context.Background(), &ReleaseStockCommand{
		Event:   releaseReq,
		Payload: events.ReleaseInventoryPayload{Reason: "payment capture declined"},
	})
	require.NoError(t, err)
	assert.Equal(t, followUps[0].ID, again[0].ID)
	assert.Equal(t, 5, stock.Available("sku-1"))
}

func TestReleaseStock_NoReservation(t *testing.T) {
	stock := infrastructure.NewMemoryStockRepository(nil)
	uc := NewReleaseStock(stock, zap.NewNop())

	releaseReq, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.ReleaseInventoryEvent,
		events.ReleaseInventoryPayload{Reason: "payment capture declined"})
	require.NoError(t, err)

	followUps, err := uc.Execute(context.Background(), &ReleaseStockCommand{
		Event:   releaseReq,
		Payload: events.ReleaseInventoryPayload{Reason: "payment capture declined"},
	})
	require.NoError(t, err, "compensation converges even with nothing to undo")
	require.Len(t, followUps, 1)

	var released events.InventoryReleasedPayload
	require.NoError(t, followUps[0].UnmarshalPayload(&released))
	assert.True(t, released.ReservationID.IsZero())
}
