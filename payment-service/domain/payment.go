package domain

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PaymentStatus represents the status of a payment attempt
type PaymentStatus string

const (
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// Payment records one capture attempt for an order. Its ID is derived from
// the triggering event, so a redelivered trigger resolves to the same payment
// instead of charging twice.
type Payment struct {
	ID         models.ID
	OrderID    models.ID
	Amount     models.Money
	Status     PaymentStatus
	FailCode   string
	Timestamps models.Timestamps
}

// NewCapturedPayment records a successful capture
func NewCapturedPayment(id, orderID models.ID, amount models.Money) *Payment {
	return &Payment{
		ID:         id,
		OrderID:    orderID,
		Amount:     amount,
		Status:     PaymentStatusCaptured,
		Timestamps: models.NewTimestamps(),
	}
}

// NewFailedPayment records a declined capture
func NewFailedPayment(id, orderID models.ID, amount models.Money, failCode string) *Payment {
	return &Payment{
		ID:         id,
		OrderID:    orderID,
		Amount:     amount,
		Status:     PaymentStatusFailed,
		FailCode:   failCode,
		Timestamps: models.NewTimestamps(),
	}
}

// PaymentRepository persists payment attempts. Save is idempotent on payment
// ID: saving an already-recorded payment is a no-op.
type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, id models.ID) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID models.ID) (*Payment, error)
}

// CaptureDeclinedError reports a capture the gateway refused. A decline is a
// saga branch, not a processing failure.
type CaptureDeclinedError struct {
	Code   string
	Reason string
}

// Error implements the error interface
func (e *CaptureDeclinedError) Error() string {
	return fmt.Sprintf("capture declined (%s): %s", e.Code, e.Reason)
}

// IsCaptureDeclined reports whether err is (or wraps) a CaptureDeclinedError
func IsCaptureDeclined(err error) bool {
	var cde *CaptureDeclinedError
	return errors.As(err, &cde)
}

// PaymentGateway captures payments. Capture must be idempotent on paymentID.
type PaymentGateway interface {
	Capture(ctx context.Context, paymentID, orderID models.ID, amount models.Money) error
}

// LimitGateway is a deterministic gateway: captures up to a per-order limit
// succeed, anything above is declined. Stands in for a real acquirer in local
// runs and tests.
type LimitGateway struct {
	Limit models.Money
}

// NewLimitGateway creates a gateway with the given per-order limit
func NewLimitGateway(limit models.Money) *LimitGateway {
	return &LimitGateway{Limit: limit}
}

// Capture approves amounts within the limit and declines the rest
func (g *LimitGateway) Capture(ctx context.Context, paymentID, orderID models.ID, amount models.Money) error {
	if amount.Currency != g.Limit.Currency {
		return &CaptureDeclinedError{
			Code:   "currency_not_supported",
			Reason: fmt.Sprintf("currency %s is not supported", amount.Currency),
		}
	}
	if amount.Amount > g.Limit.Amount {
		return &CaptureDeclinedError{
			Code:   "limit_exceeded",
			Reason: fmt.Sprintf("amount %d exceeds limit %d", amount.Amount, g.Limit.Amount),
		}
	}
	return nil
}
