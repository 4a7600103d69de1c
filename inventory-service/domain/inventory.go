package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// ReservationStatus represents the status of a stock reservation
type ReservationStatus string

const (
	ReservationStatusHeld     ReservationStatus = "held"
	ReservationStatusReleased ReservationStatus = "released"
)

// Reservation is a stock hold for one order. Its ID is derived from the
// triggering event, so re-reserving on a redelivery resolves to the same
// reservation instead of double-holding stock.
type Reservation struct {
	ID         models.ID
	OrderID    models.ID
	LineItems  []events.LineItem
	Status     ReservationStatus
	Timestamps models.Timestamps
}

// NewReservation creates a held reservation for an order
func NewReservation(id, orderID models.ID, lineItems []events.LineItem) *Reservation {
	return &Reservation{
		ID:         id,
		OrderID:    orderID,
		LineItems:  lineItems,
		Status:     ReservationStatusHeld,
		Timestamps: models.NewTimestamps(),
	}
}

// Release marks the reservation as released
func (r *Reservation) Release() {
	r.Status = ReservationStatusReleased
	r.Timestamps = r.Timestamps.Update()
}

// InsufficientStockError reports which SKU could not be held
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

// Error implements the error interface
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// IsInsufficientStock reports whether err is (or wraps) an InsufficientStockError
func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

// StockRepository holds stock levels and reservations. Reserve and Release
// are idempotent on reservation ID: repeating either call after it succeeded
// changes nothing.
type StockRepository interface {
	// Reserve atomically holds stock for every line item and persists the
	// reservation. Reserving an already-held or released reservation ID is a
	// no-op. Returns InsufficientStockError when any SKU cannot be held.
	Reserve(ctx context.Context, reservation *Reservation) error

	// Release returns held stock and marks the reservation released.
	// Releasing an already-released reservation is a no-op; nil reservation
	// is returned when the order holds none.
	Release(ctx context.Context, orderID models.ID) (*Reservation, error)

	// FindByOrderID returns the order's reservation, or nil when absent.
	FindByOrderID(ctx context.Context, orderID models.ID) (*Reservation, error)
}

// StockLevel is one SKU's availability
type StockLevel struct {
	SKU       string
	Available int
	UpdatedAt time.Time
}
