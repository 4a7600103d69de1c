package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// Order is the authoritative order projection. It carries the generic saga
// position plus everything the intake API exposes to callers: line items,
// totals, and the identifiers accumulated along the saga.
type Order struct {
	ID            models.ID
	CustomerID    models.ID
	LineItems     []events.LineItem
	Total         models.Money
	State         saga.State
	LastEventID   models.ID
	ReservationID models.ID
	PaymentID     models.ID
	FailureReason string
	Timestamps    models.Timestamps
	Version       models.Version
}

// CreateOrder builds a new order in the created state. The caller publishes
// the matching OrderCreated event; causedBy is that event's ID, so consuming
// the own emission later is recognized as an exact duplicate.
func CreateOrder(id, customerID models.ID, lineItems []events.LineItem, total models.Money, causedBy models.ID) (*Order, error) {
	if len(lineItems) == 0 {
		return nil, errors.New("order needs at least one line item")
	}
	if !total.IsPositive() {
		return nil, errors.New("order total must be positive")
	}

	return &Order{
		ID:          id,
		CustomerID:  customerID,
		LineItems:   lineItems,
		Total:       total,
		State:       saga.StateCreated,
		LastEventID: causedBy,
		Timestamps:  models.NewTimestamps(),
		Version:     models.NewVersion(),
	}, nil
}

// ApplyEvent advances the order with one event from the stream, absorbing the
// identifiers its payload carries
func (o *Order) ApplyEvent(event *events.Event) error {
	next, err := saga.Apply(o.State, o.LastEventID, event)
	if err != nil {
		return err
	}

	switch event.Type {
	case events.InventoryReservedEvent:
		var payload events.InventoryReservedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return errors.Wrap(err, "parse inventory reserved payload")
		}
		o.ReservationID = payload.ReservationID

	case events.PaymentCapturedEvent:
		var payload events.PaymentCapturedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return errors.Wrap(err, "parse payment captured payload")
		}
		o.PaymentID = payload.PaymentID

	case events.OrderValidationFailedEvent:
		var payload events.OrderValidationFailedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return errors.Wrap(err, "parse validation failed payload")
		}
		o.FailureReason = payload.Reason

	case events.InventoryReservationFailedEvent:
		var payload events.InventoryReservationFailedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return errors.Wrap(err, "parse reservation failed payload")
		}
		o.FailureReason = payload.Reason

	case events.PaymentFailedEvent:
		var payload events.PaymentFailedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return errors.Wrap(err, "parse payment failed payload")
		}
		o.FailureReason = payload.Reason
	}

	o.State = next
	o.LastEventID = event.ID
	o.Timestamps = o.Timestamps.Update()
	o.Version = o.Version.Next()
	return nil
}

// OrderRepository persists the order projection. Save is a conditional write
// on Version: an insert when fresh, otherwise an update that must match the
// previous version or fail with saga.ErrStaleProjection.
type OrderRepository interface {
	FindByID(ctx context.Context, id models.ID) (*Order, error)
	Save(ctx context.Context, order *Order) error
}
