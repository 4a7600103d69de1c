package infrastructure

import (
	"context"
	"sync"

	"github.com/NullPoint3rDev/event-driven-order/inventory-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// MemoryStockRepository implements StockRepository in memory with the same
// idempotency rules as the Postgres repository. Used by tests and local runs.
type MemoryStockRepository struct {
	mux          sync.Mutex
	available    map[string]int
	reservations map[models.ID]*domain.Reservation
	byOrder      map[models.ID]models.ID
}

// NewMemoryStockRepository creates a repository seeded with stock levels
func NewMemoryStockRepository(available map[string]int) *MemoryStockRepository {
	levels := make(map[string]int, len(available))
	for sku, qty := range available {
		levels[sku] = qty
	}
	return &MemoryStockRepository{
		available:    levels,
		reservations: make(map[models.ID]*domain.Reservation),
		byOrder:      make(map[models.ID]models.ID),
	}
}

// Reserve holds stock for every line item
func (r *MemoryStockRepository) Reserve(ctx context.Context, reservation *domain.Reservation) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if _, ok := r.reservations[reservation.ID]; ok {
		return nil
	}

	for _, item := range reservation.LineItems {
		if r.available[item.SKU] < item.Quantity {
			return &domain.InsufficientStockError{
				SKU:       item.SKU,
				Requested: item.Quantity,
				Available: r.available[item.SKU],
			}
		}
	}
	for _, item := range reservation.LineItems {
		r.available[item.SKU] -= item.Quantity
	}

	held := *reservation
	r.reservations[reservation.ID] = &held
	r.byOrder[reservation.OrderID] = reservation.ID
	return nil
}

// Release returns held stock and marks the reservation released
func (r *MemoryStockRepository) Release(ctx context.Context, orderID models.ID) (*domain.Reservation, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, nil
	}
	reservation := r.reservations[id]
	if reservation.Status == domain.ReservationStatusReleased {
		copied := *reservation
		return &copied, nil
	}

	for _, item := range reservation.LineItems {
		r.available[item.SKU] += item.Quantity
	}
	reservation.Release()

	copied := *reservation
	return &copied, nil
}

// FindByOrderID returns a copy of the order's reservation, or nil when absent
func (r *MemoryStockRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*domain.Reservation, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, nil
	}
	copied := *r.reservations[id]
	return &copied, nil
}

// Available returns the current stock level of a SKU
func (r *MemoryStockRepository) Available(sku string) int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.available[sku]
}
