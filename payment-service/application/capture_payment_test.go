package application

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/payment-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/payment-service/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

func newReservedEvent(t *testing.T, total models.Money) *events.Event {
	t.Helper()
	created, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent, events.OrderCreatedPayload{})
	require.NoError(t, err)
	reserved, err := events.NewFollowup("inventory-service", created, 0, events.InventoryReservedEvent,
		events.InventoryReservedPayload{
			ReservationID: models.GenerateUUID(),
			Total:         total,
		})
	require.NoError(t, err)
	return reserved
}

// countingGateway wraps LimitGateway and counts Capture calls
type countingGateway struct {
	inner    domain.PaymentGateway
	captures int
}

func (g *countingGateway) Capture(ctx context.Context, paymentID, orderID models.ID, amount models.Money) error {
	g.captures++
	return g.inner.Capture(ctx, paymentID, orderID, amount)
}

func TestCapturePayment_Captured(t *testing.T) {
	total := models.NewMoney(3000, "USD")
	event := newReservedEvent(t, total)

	payments := infrastructure.NewMemoryPaymentRepository()
	gateway := &countingGateway{inner: domain.NewLimitGateway(models.NewMoney(100000, "USD"))}
	uc := NewCapturePayment(payments, gateway, zap.NewNop())

	var payload events.InventoryReservedPayload
	require.NoError(t, event.UnmarshalPayload(&payload))

	followUps, err := uc.Execute(context.Background(), &CapturePaymentCommand{Event: event, Payload: payload})
	require.NoError(t, err)
	require.Len(t, followUps, 1)

	out := followUps[0]
	assert.Equal(t, events.PaymentCapturedEvent, out.Type)
	assert.Equal(t, events.DeriveID(ConsumerID, event.ID, 0), out.ID)
	assert.Equal(t, 1, gateway.captures)

	var captured events.PaymentCapturedPayload
	require.NoError(t, out.UnmarshalPayload(&captured))
	assert.Equal(t, events.DeriveID(paymentIDScope, event.ID, 0), captured.PaymentID)
	assert.Equal(t, total, captured.Amount)

	// Redelivery reuses the recorded payment instead of charging again.
	again, err := uc.Execute(context.Background(), &CapturePaymentCommand{Event: event, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, out.ID, again[0].ID)
	assert.Equal(t, 1, gateway.captures, "the gateway must not be called twice")
}

func TestCapturePayment_DeclinedEmitsCompensation(t *testing.T) {
	total := models.NewMoney(999999, "USD")
	event := newReservedEvent(t, total)

	payments := infrastructure.NewMemoryPaymentRepository()
	uc := NewCapturePayment(payments, domain.NewLimitGateway(models.NewMoney(100000, "USD")), zap.NewNop())

	var payload events.InventoryReservedPayload
	require.NoError(t, event.UnmarshalPayload(&payload))

	followUps, err := uc.Execute(context.Background(), &CapturePaymentCommand{Event: event, Payload: payload})
	require.NoError(t, err, "a declined capture is a saga branch, not a failure")
	require.Len(t, followUps, 2)

	failed, release := followUps[0], followUps[1]
	assert.Equal(t, events.PaymentFailedEvent, failed.Type)
	assert.Equal(t, events.ReleaseInventoryEvent, release.Type)
	assert.Equal(t, event.OrderID, release.OrderID, "compensation shares the order's partition key")

	// All three possible outputs of this stage carry distinct identities.
	assert.Equal(t, events.DeriveID(ConsumerID, event.ID, 1), failed.ID)
	assert.Equal(t, events.DeriveID(ConsumerID, event.ID, 2), release.ID)
	assert.NotEqual(t, failed.ID, events.DeriveID(ConsumerID, event.ID, 0))

	var failedPayload events.PaymentFailedPayload
	require.NoError(t, failed.UnmarshalPayload(&failedPayload))
	assert.Equal(t, "limit_exceeded", failedPayload.Code)

	// The failed attempt is recorded; a redelivery reproduces the branch
	// without asking the gateway again.
	payment, err := payments.FindByOrderID(context.Background(), event.OrderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, domain.PaymentStatusFailed, payment.Status)

	again, err := uc.Execute(context.Background(), &CapturePaymentCommand{Event: event, Payload: payload})
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, failed.ID, again[0].ID)
	assert.Equal(t, release.ID, again[1].ID)
}

func TestCapturePayment_GatewayErrorPropagates(t *testing.T) {
	event := newReservedEvent(t, models.NewMoney(3000, "USD"))

	uc := NewCapturePayment(infrastructure.NewMemoryPaymentRepository(), failingGateway{}, zap.NewNop())

	var payload events.InventoryReservedPayload
	require.NoError(t, event.UnmarshalPayload(&payload))

	_, err := uc.Execute(context.Background(), &CapturePaymentCommand{Event: event, Payload: payload})
	require.Error(t, err, "an unreachable gateway is a processing failure, not a decline")
	assert.Contains(t, err.Error(), "capture payment")
}

type failingGateway struct{}

func (failingGateway) Capture(context.Context, models.ID, models.ID, models.Money) error {
	return errors.New("acquirer unreachable")
}
