package infrastructure

import (
	"context"
	"sync"

	"github.com/NullPoint3rDev/event-driven-order/payment-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// MemoryPaymentRepository implements PaymentRepository in memory. Used by
// tests and local runs.
type MemoryPaymentRepository struct {
	mux      sync.RWMutex
	payments map[models.ID]*domain.Payment
	byOrder  map[models.ID]models.ID
}

// NewMemoryPaymentRepository creates an empty repository
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[models.ID]*domain.Payment),
		byOrder:  make(map[models.ID]models.ID),
	}
}

// Save records a payment attempt; saving an existing ID is a no-op
func (r *MemoryPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if _, ok := r.payments[payment.ID]; ok {
		return nil
	}
	copied := *payment
	r.payments[payment.ID] = &copied
	r.byOrder[payment.OrderID] = payment.ID
	return nil
}

// FindByID returns a copy of the payment, or nil when absent
func (r *MemoryPaymentRepository) FindByID(ctx context.Context, id models.ID) (*domain.Payment, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	copied := *payment
	return &copied, nil
}

// FindByOrderID returns a copy of the order's payment, or nil when absent
func (r *MemoryPaymentRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*domain.Payment, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, nil
	}
	copied := *r.payments[id]
	return &copied, nil
}
