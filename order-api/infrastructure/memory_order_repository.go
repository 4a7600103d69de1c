package infrastructure

import (
	"context"
	"sync"

	"github.com/NullPoint3rDev/event-driven-order/order-api/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// MemoryOrderRepository is an in-memory OrderRepository for tests
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[models.ID]domain.Order
}

// NewMemoryOrderRepository creates a new MemoryOrderRepository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[models.ID]domain.Order)}
}

// FindByID returns the order, or nil when absent
func (r *MemoryOrderRepository) FindByID(_ context.Context, id models.ID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copied := order
	return &copied, nil
}

// Save applies the same conditional-write contract as the Postgres repository
func (r *MemoryOrderRepository) Save(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.orders[order.ID]
	if order.Version == 1 {
		if exists {
			return saga.ErrStaleProjection
		}
	} else {
		if !exists || current.Version != order.Version-1 {
			return saga.ErrStaleProjection
		}
	}

	r.orders[order.ID] = *order
	return nil
}
