package application

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// ConsumerID identifies this service in consumption records and derived
// follow-up event IDs
const ConsumerID = "validation-service"

// ValidateOrderCommand carries a freshly created order through validation
type ValidateOrderCommand struct {
	Event   *events.Event
	Payload events.OrderCreatedPayload
}

// validatedOrder is the shape the structural rules run against
type validatedOrder struct {
	CustomerID string              `validate:"required,uuid"`
	LineItems  []validatedLineItem `validate:"required,min=1,dive"`
	Currency   string              `validate:"required,len=3"`
}

type validatedLineItem struct {
	SKU       string `validate:"required"`
	Quantity  int    `validate:"required,gt=0"`
	UnitPrice int64  `validate:"gt=0"`
}

// ValidateOrder checks a created order and decides validated vs rejected.
// The outcome is always an event, never an error: a rejected order is a
// normal saga branch, not a processing failure.
type ValidateOrder struct {
	validate *validator.Validate
	log      *zap.Logger
}

// NewValidateOrder creates a new ValidateOrder use case
func NewValidateOrder(log *zap.Logger) *ValidateOrder {
	return &ValidateOrder{
		validate: validator.New(),
		log:      log,
	}
}

// Execute validates the order and returns the single follow-up event
func (uc *ValidateOrder) Execute(ctx context.Context, cmd *ValidateOrderCommand) ([]*events.Event, error) {
	if reason, code := uc.check(cmd.Payload); code != "" {
		uc.log.Info("order rejected",
			zap.String("order_id", cmd.Event.OrderID.String()),
			zap.String("code", code),
		)
		failed, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.OrderValidationFailedEvent,
			events.OrderValidationFailedPayload{Reason: reason, Code: code})
		if err != nil {
			return nil, errors.Wrap(err, "build validation failed event")
		}
		return []*events.Event{failed}, nil
	}

	validated, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.OrderValidatedEvent,
		events.OrderValidatedPayload{
			LineItems: cmd.Payload.LineItems,
			Total:     cmd.Payload.Total,
		})
	if err != nil {
		return nil, errors.Wrap(err, "build order validated event")
	}
	return []*events.Event{validated}, nil
}

// check runs structural and business rules and returns a rejection reason and
// code, or empty strings when the order is acceptable
func (uc *ValidateOrder) check(payload events.OrderCreatedPayload) (string, string) {
	target := validatedOrder{
		CustomerID: payload.CustomerID,
		Currency:   payload.Total.Currency,
	}
	for _, item := range payload.LineItems {
		target.LineItems = append(target.LineItems, validatedLineItem{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Amount,
		})
	}

	if err := uc.validate.Struct(target); err != nil {
		return err.Error(), "invalid_order"
	}

	total := models.NewMoney(0, payload.Total.Currency)
	for _, item := range payload.LineItems {
		sum, err := total.Add(item.UnitPrice.MultiplyQty(item.Quantity))
		if err != nil {
			return fmt.Sprintf("line item %s: %v", item.SKU, err), "currency_mismatch"
		}
		total = sum
	}
	if !total.Equals(payload.Total) {
		return fmt.Sprintf("declared total %d does not match line items total %d",
			payload.Total.Amount, total.Amount), "total_mismatch"
	}

	return "", ""
}
