package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

func TestNext(t *testing.T) {
	orderID := models.ID("550e8400-e29b-41d4-a716-446655440000")

	tests := []struct {
		name    string
		from    State
		event   events.Type
		want    State
		invalid bool
	}{
		{name: "created from none", from: StateNone, event: events.OrderCreatedEvent, want: StateCreated},
		{name: "validated from created", from: StateCreated, event: events.OrderValidatedEvent, want: StateValidated},
		{name: "validated from validating", from: StateValidating, event: events.OrderValidatedEvent, want: StateValidated},
		{name: "validation failed from created", from: StateCreated, event: events.OrderValidationFailedEvent, want: StateValidationFailed},
		{name: "reserved from validated", from: StateValidated, event: events.InventoryReservedEvent, want: StateReserved},
		{name: "reserved from reserving", from: StateReserving, event: events.InventoryReservedEvent, want: StateReserved},
		{name: "reservation failed from validated", from: StateValidated, event: events.InventoryReservationFailedEvent, want: StateReservationFailed},
		{name: "paid from reserved", from: StateReserved, event: events.PaymentCapturedEvent, want: StatePaid},
		{name: "paid from payment pending", from: StatePaymentPending, event: events.PaymentCapturedEvent, want: StatePaid},
		{name: "payment failed from reserved", from: StateReserved, event: events.PaymentFailedEvent, want: StatePaymentFailed},
		{name: "release requested after payment failure", from: StatePaymentFailed, event: events.ReleaseInventoryEvent, want: StateCancelling},
		{name: "released while cancelling", from: StateCancelling, event: events.InventoryReleasedEvent, want: StateCancelling},
		{name: "released straight from payment failed", from: StatePaymentFailed, event: events.InventoryReleasedEvent, want: StateCancelling},
		{name: "completed from paid", from: StatePaid, event: events.OrderCompletedEvent, want: StateCompleted},
		{name: "cancelled from validation failed", from: StateValidationFailed, event: events.OrderCancelledEvent, want: StateCancelled},
		{name: "cancelled from reservation failed", from: StateReservationFailed, event: events.OrderCancelledEvent, want: StateCancelled},
		{name: "cancelled from cancelling", from: StateCancelling, event: events.OrderCancelledEvent, want: StateCancelled},

		{name: "created twice is invalid", from: StateCreated, event: events.OrderCreatedEvent, invalid: true},
		{name: "payment before reservation is invalid", from: StateValidated, event: events.PaymentCapturedEvent, invalid: true},
		{name: "completion of unpaid order is invalid", from: StateReserved, event: events.OrderCompletedEvent, invalid: true},
		{name: "validation of unknown order is invalid", from: StateNone, event: events.OrderValidatedEvent, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Next(orderID, tt.from, tt.event)
			if tt.invalid {
				require.Error(t, err)
				assert.True(t, IsInvalidTransition(err))
				assert.Equal(t, tt.from, next, "state must not move on an invalid event")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestApply_DuplicateAndTerminal(t *testing.T) {
	event, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderValidatedEvent, events.OrderValidatedPayload{})
	require.NoError(t, err)

	// First application transitions.
	next, err := Apply(StateCreated, "", event)
	require.NoError(t, err)
	assert.Equal(t, StateValidated, next)

	// Exact redelivery of the last applied event is absorbed.
	same, err := Apply(StateValidated, event.ID, event)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, StateValidated, same)

	// A different event ID in an impossible position is a violation.
	other, err := events.NewEvent(event.OrderID, events.OrderValidatedEvent, events.OrderValidatedPayload{})
	require.NoError(t, err)
	_, err = Apply(StateValidated, event.ID, other)
	assert.True(t, IsInvalidTransition(err))

	// Terminal orders absorb everything.
	_, err = Apply(StateCompleted, event.ID, other)
	assert.ErrorIs(t, err, ErrOrderClosed)
	_, err = Apply(StateCancelled, event.ID, other)
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestBegin(t *testing.T) {
	tests := []struct {
		from State
		want State
		ok   bool
	}{
		{StateCreated, StateValidating, true},
		{StateValidated, StateReserving, true},
		{StateReserved, StatePaymentPending, true},
		{StateValidationFailed, StateCancelling, true},
		{StateReservationFailed, StateCancelling, true},
		{StatePaymentFailed, StateCancelling, true},
		{StatePaid, StatePaid, false},
		{StateCompleted, StateCompleted, false},
	}

	for _, tt := range tests {
		got, ok := Begin(tt.from)
		assert.Equal(t, tt.ok, ok, "from %q", tt.from)
		assert.Equal(t, tt.want, got, "from %q", tt.from)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StatePaid.Terminal())
	assert.False(t, StateCancelling.Terminal())
}
