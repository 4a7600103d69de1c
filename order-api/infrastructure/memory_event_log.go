package infrastructure

import (
	"context"
	"sync"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// MemoryEventLog is an in-memory append-only event log for tests
type MemoryEventLog struct {
	mu      sync.RWMutex
	entries []*events.Event
	seen    map[models.ID]bool
}

// NewMemoryEventLog creates an empty log
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{seen: make(map[models.ID]bool)}
}

// Append stores the event; appending the same event ID again is a no-op
func (l *MemoryEventLog) Append(_ context.Context, event *events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[event.ID] {
		return nil
	}
	l.seen[event.ID] = true
	l.entries = append(l.entries, event.Clone())
	return nil
}

// ListByOrder returns the order's events in append order
func (l *MemoryEventLog) ListByOrder(_ context.Context, orderID models.ID) ([]*events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*events.Event
	for _, event := range l.entries {
		if event.OrderID == orderID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}
