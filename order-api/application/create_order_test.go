package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/order-api/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// capturingPublisher records everything published
type capturingPublisher struct {
	published []*events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, evts ...*events.Event) error {
	p.published = append(p.published, evts...)
	return nil
}

func validCommand() *CreateOrderCommand {
	return &CreateOrderCommand{
		CustomerID: "550e8400-e29b-41d4-a716-446655440010",
		Currency:   "USD",
		LineItems: []CreateOrderLineItem{
			{SKU: "sku-1", Quantity: 2, UnitPrice: 1500},
			{SKU: "sku-2", Quantity: 1, UnitPrice: 500},
		},
	}
}

func TestCreateOrder_Execute(t *testing.T) {
	orders := infrastructure.NewMemoryOrderRepository()
	eventLog := infrastructure.NewMemoryEventLog()
	publisher := &capturingPublisher{}
	uc := NewCreateOrder(orders, eventLog, publisher, zap.NewNop())

	response, err := uc.Execute(context.Background(), validCommand())
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, string(saga.StateCreated), response.Status)

	orderID := models.ID(response.OrderID)

	// One OrderCreated event, published and logged.
	require.Len(t, publisher.published, 1)
	created := publisher.published[0]
	assert.Equal(t, events.OrderCreatedEvent, created.Type)
	assert.Equal(t, orderID, created.OrderID)

	logged, err := eventLog.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, created.ID, logged[0].ID)

	var payload events.OrderCreatedPayload
	require.NoError(t, created.UnmarshalPayload(&payload))
	assert.Equal(t, int64(3500), payload.Total.Amount)
	assert.Equal(t, "USD", payload.Total.Currency)

	// The row starts at the event's stream position: consuming the own
	// emission is an exact duplicate.
	order, err := orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, saga.StateCreated, order.State)
	assert.Equal(t, created.ID, order.LastEventID)
	assert.Equal(t, int64(3500), order.Total.Amount)
}

func TestCreateOrder_RejectsInvalidCommands(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cmd *CreateOrderCommand)
	}{
		{"missing customer", func(cmd *CreateOrderCommand) { cmd.CustomerID = "" }},
		{"customer not a uuid", func(cmd *CreateOrderCommand) { cmd.CustomerID = "not-a-uuid" }},
		{"bad currency", func(cmd *CreateOrderCommand) { cmd.Currency = "DOLLARS" }},
		{"no line items", func(cmd *CreateOrderCommand) { cmd.LineItems = nil }},
		{"zero quantity", func(cmd *CreateOrderCommand) { cmd.LineItems[0].Quantity = 0 }},
		{"negative price", func(cmd *CreateOrderCommand) { cmd.LineItems[0].UnitPrice = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &capturingPublisher{}
			uc := NewCreateOrder(infrastructure.NewMemoryOrderRepository(), infrastructure.NewMemoryEventLog(), publisher, zap.NewNop())

			cmd := validCommand()
			tt.mutate(cmd)

			_, err := uc.Execute(context.Background(), cmd)
			require.Error(t, err)
			assert.Empty(t, publisher.published, "rejected intake must not start a saga")
		})
	}
}

func TestProjectOrder_Apply(t *testing.T) {
	orders := infrastructure.NewMemoryOrderRepository()
	eventLog := infrastructure.NewMemoryEventLog()
	publisher := &capturingPublisher{}

	create := NewCreateOrder(orders, eventLog, publisher, zap.NewNop())
	project := NewProjectOrder(orders, eventLog, zap.NewNop())

	response, err := create.Execute(context.Background(), validCommand())
	require.NoError(t, err)
	orderID := models.ID(response.OrderID)
	created := publisher.published[0]

	// Consuming the own OrderCreated emission is a duplicate no-op.
	_, err = project.Apply(context.Background(), created)
	assert.ErrorIs(t, err, saga.ErrDuplicateEvent)

	// A downstream event advances the row and lands in the log.
	validated, err := events.NewFollowup("validation-service", created, 0, events.OrderValidatedEvent,
		events.OrderValidatedPayload{})
	require.NoError(t, err)

	followUps, err := project.Apply(context.Background(), validated)
	require.NoError(t, err)
	assert.Empty(t, followUps, "the projector never emits")

	order, err := orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, saga.StateValidated, order.State)
	assert.Equal(t, validated.ID, order.LastEventID)

	logged, err := eventLog.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Len(t, logged, 2)

	// Identifier payloads are absorbed into the row.
	reservationID := models.GenerateUUID()
	reserved, err := events.NewFollowup("inventory-service", validated, 0, events.InventoryReservedEvent,
		events.InventoryReservedPayload{ReservationID: reservationID})
	require.NoError(t, err)

	_, err = project.Apply(context.Background(), reserved)
	require.NoError(t, err)

	order, err = orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, saga.StateReserved, order.State)
	assert.Equal(t, reservationID, order.ReservationID)
}

func TestProjectOrder_RebuildsFromStream(t *testing.T) {
	// No row exists: an OrderCreated from another instance rebuilds it.
	orders := infrastructure.NewMemoryOrderRepository()
	project := NewProjectOrder(orders, infrastructure.NewMemoryEventLog(), zap.NewNop())

	created, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent,
		events.OrderCreatedPayload{
			CustomerID: "550e8400-e29b-41d4-a716-446655440010",
			LineItems:  []events.LineItem{{SKU: "sku-1", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")}},
			Total:      models.NewMoney(1000, "USD"),
		})
	require.NoError(t, err)

	_, err = project.Apply(context.Background(), created)
	require.NoError(t, err)

	order, err := orders.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, saga.StateCreated, order.State)
	assert.Equal(t, created.ID, order.LastEventID)

	// Any other event for an unknown order is a protocol violation.
	stray, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440099", events.OrderValidatedEvent,
		events.OrderValidatedPayload{})
	require.NoError(t, err)

	_, err = project.Apply(context.Background(), stray)
	assert.True(t, saga.IsInvalidTransition(err))
}
