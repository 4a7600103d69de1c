package application

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/payment-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// ConsumerID identifies this service in consumption records and derived
// follow-up event IDs
const ConsumerID = "payment-service"

// paymentIDScope namespaces derived payment IDs apart from derived follow-up
// event IDs of the same cause.
const paymentIDScope = ConsumerID + ".payment"

// CapturePaymentCommand asks for payment capture on a reserved order
type CapturePaymentCommand struct {
	Event   *events.Event
	Payload events.InventoryReservedPayload
}

// CapturePayment charges the order total once inventory is held. A declined
// capture is a saga branch that also emits the compensating ReleaseInventory,
// since this service knows reservation preceded it.
type CapturePayment struct {
	payments domain.PaymentRepository
	gateway  domain.PaymentGateway
	log      *zap.Logger
}

// NewCapturePayment creates a new CapturePayment use case
func NewCapturePayment(payments domain.PaymentRepository, gateway domain.PaymentGateway, log *zap.Logger) *CapturePayment {
	return &CapturePayment{payments: payments, gateway: gateway, log: log}
}

// Execute captures the payment and returns the follow-up events
func (uc *CapturePayment) Execute(ctx context.Context, cmd *CapturePaymentCommand) ([]*events.Event, error) {
	paymentID := events.DeriveID(paymentIDScope, cmd.Event.ID, 0)

	// A recorded attempt means a previous delivery got past the gateway;
	// reuse its outcome instead of charging again.
	payment, err := uc.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "load payment")
	}

	if payment == nil {
		err := uc.gateway.Capture(ctx, paymentID, cmd.Event.OrderID, cmd.Payload.Total)
		var declined *domain.CaptureDeclinedError
		switch {
		case err == nil:
			payment = domain.NewCapturedPayment(paymentID, cmd.Event.OrderID, cmd.Payload.Total)
		case errors.As(err, &declined):
			payment = domain.NewFailedPayment(paymentID, cmd.Event.OrderID, cmd.Payload.Total, declined.Code)
		default:
			return nil, errors.Wrap(err, "capture payment")
		}

		if err := uc.payments.Save(ctx, payment); err != nil {
			return nil, errors.Wrap(err, "save payment")
		}
	}

	if payment.Status == domain.PaymentStatusCaptured {
		captured, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.PaymentCapturedEvent,
			events.PaymentCapturedPayload{
				PaymentID: payment.ID,
				Amount:    payment.Amount,
			})
		if err != nil {
			return nil, errors.Wrap(err, "build payment captured event")
		}
		return []*events.Event{captured}, nil
	}

	uc.log.Info("capture declined",
		zap.String("order_id", cmd.Event.OrderID.String()),
		zap.String("code", payment.FailCode),
	)

	failed, err := events.NewFollowup(ConsumerID, cmd.Event, 1, events.PaymentFailedEvent,
		events.PaymentFailedPayload{
			Reason: "payment capture declined",
			Code:   payment.FailCode,
			Amount: payment.Amount,
		})
	if err != nil {
		return nil, errors.Wrap(err, "build payment failed event")
	}

	release, err := events.NewFollowup(ConsumerID, cmd.Event, 2, events.ReleaseInventoryEvent,
		events.ReleaseInventoryPayload{Reason: "payment capture declined"})
	if err != nil {
		return nil, errors.Wrap(err, "build release inventory event")
	}

	// Same partition key, so inventory observes the failure before the
	// release request.
	return []*events.Event{failed, release}, nil
}
