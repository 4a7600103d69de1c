package application

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/inventory-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// ReleaseStockCommand asks for a held reservation to be undone
type ReleaseStockCommand struct {
	Event   *events.Event
	Payload events.ReleaseInventoryPayload
}

// ReleaseStock returns held stock to the pool as compensation for a failed
// later stage
type ReleaseStock struct {
	stock domain.StockRepository
	log   *zap.Logger
}

// NewReleaseStock creates a new ReleaseStock use case
func NewReleaseStock(stock domain.StockRepository, log *zap.Logger) *ReleaseStock {
	return &ReleaseStock{stock: stock, log: log}
}

// Execute releases the order's reservation and returns the single follow-up
// event. An order without a held reservation still confirms the release:
// compensation must converge even when there is nothing to undo.
func (uc *ReleaseStock) Execute(ctx context.Context, cmd *ReleaseStockCommand) ([]*events.Event, error) {
	reservation, err := uc.stock.Release(ctx, cmd.Event.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "release stock")
	}

	payload := events.InventoryReleasedPayload{}
	if reservation != nil {
		payload.ReservationID = reservation.ID
	}

	uc.log.Info("reservation released",
		zap.String("order_id", cmd.Event.OrderID.String()),
		zap.String("reason", cmd.Payload.Reason),
	)

	released, err := events.NewFollowup(ConsumerID, cmd.Event, 0, events.InventoryReleasedEvent, payload)
	if err != nil {
		return nil, errors.Wrap(err, "build inventory released event")
	}
	return []*events.Event{released}, nil
}
