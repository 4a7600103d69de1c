package application

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/inventory-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// ConsumerID identifies this service in consumption records and derived
// follow-up event IDs
const ConsumerID = "inventory-service"

// reservationIDScope namespaces derived reservation IDs apart from derived
// follow-up event IDs of the same cause.
const reservationIDScope = ConsumerID + ".reservation"

// ReserveStockCommand asks for a stock hold backing a validated order
type ReserveStockCommand struct {
	Event   *events.Event
	Payload events.OrderValidatedPayload
}

// ReserveStock holds stock for a validated order. Shortage is a saga branch,
// not an error: it yields InventoryReservationFailed.
type ReserveStock struct {
	stock domain.StockRepository
	log   *zap.Logger
}

// NewReserveStock creates a new ReserveStock use case
func NewReserveStock(stock domain.StockRepository, log *zap.Logger) *ReserveStock {
	return &ReserveStock{stock: stock, log: log}
}

// Execute reserves stock and returns the single follow-up event
func (uc *ReserveStock) Execute(ctx context.Context, cmd *ReserveStockCommand) ([]*events.Event, error) {
	reservationID := events.DeriveID(reservationIDScope, cmd.Event.ID, 0)
	reservation := domain.NewReservation(reservationID, cmd.Event.OrderID, cmd.Payload.LineItems)

	err := uc.stock.Reserve(ctx, reservation)
	if err != nil {
		var shortage *domain.InsufficientStockError
		if !errors.As(err, &shortage) {
			return nil, errors.Wrap(err, "reserve stock")
		}

		uc.log.Info("reservation failed",
			zap.String("order_id", cmd.Event.OrderID.String()),
			zap.String("sku", shortage.SKU),
		)
		// The failure branch uses a distinct derivation index: stock can
		// change between a crash and its redelivery, and the two outcomes
		// must never share an event identity.
		failed, err := events.NewFollowup(ConsumerID, cmd.Event, 1, events.InventoryReservationFailedEvent,
			events.InventoryReservationFailedPayload{
				Reason: shortage.Error(),
				SKU:    shortage.SKU,
			})
		if err != nil {
			return nil, errors.Wrap(err, "build reservation failed event")
		}
		return []*events.Event{failed}, nil
	}

	reserved, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.InventoryReservedEvent,
		events.InventoryReservedPayload{
			ReservationID: reservation.ID,
			LineItems:     cmd.Payload.LineItems,
			Total:         cmd.Payload.Total,
		})
	if err != nil {
		return nil, errors.Wrap(err, "build inventory reserved event")
	}
	return []*events.Event{reserved}, nil
}
