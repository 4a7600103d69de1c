package infrastructure

import (
	"context"
	"sync"

	"github.com/NullPoint3rDev/event-driven-order/notification-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// MemoryNotificationRepository implements NotificationRepository in memory.
// Used by tests and local runs.
type MemoryNotificationRepository struct {
	mux           sync.RWMutex
	notifications map[models.ID]*domain.Notification
	order         []models.ID
}

// NewMemoryNotificationRepository creates an empty repository
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{notifications: make(map[models.ID]*domain.Notification)}
}

// Save records a notification; saving an existing ID is a no-op
func (r *MemoryNotificationRepository) Save(ctx context.Context, notification *domain.Notification) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if _, ok := r.notifications[notification.ID]; ok {
		return nil
	}
	copied := *notification
	r.notifications[notification.ID] = &copied
	r.order = append(r.order, notification.ID)
	return nil
}

// FindByOrderID returns all notifications recorded for an order
func (r *MemoryNotificationRepository) FindByOrderID(ctx context.Context, orderID models.ID) ([]*domain.Notification, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	var matched []*domain.Notification
	for _, id := range r.order {
		notification := r.notifications[id]
		if notification.OrderID == orderID {
			copied := *notification
			matched = append(matched, &copied)
		}
	}
	return matched, nil
}
