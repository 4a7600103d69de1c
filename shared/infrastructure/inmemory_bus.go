package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// InMemoryBus is a synchronous event bus for tests and local wiring. Events
// drain through a FIFO queue: each one is delivered to every subscriber group
// before the next, so a follow-up published during handling never overtakes
// its cause. Delivery happens on the publishing goroutine, so a test observes
// all downstream effects once the outermost Publish returns.
type InMemoryBus struct {
	mux      sync.Mutex
	handlers map[string]MessageHandler
	groups   []string
	queue    []*events.Event
	draining bool
}

// NewInMemoryBus creates an empty bus
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string]MessageHandler)}
}

// Subscribe registers the handler for a consumer group. Later registrations
// for the same group replace the earlier one.
func (b *InMemoryBus) Subscribe(group string, handler MessageHandler) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if _, ok := b.handlers[group]; !ok {
		b.groups = append(b.groups, group)
	}
	b.handlers[group] = handler
}

// Publish enqueues the events and, unless a drain is already running higher
// up the stack, delivers the queue in order to every subscribed group.
// Handler errors stop the drain and surface to the outermost caller.
func (b *InMemoryBus) Publish(ctx context.Context, evts ...*events.Event) error {
	b.mux.Lock()
	b.queue = append(b.queue, evts...)
	if b.draining {
		// A handler published follow-ups; the outer drain picks them up.
		b.mux.Unlock()
		return nil
	}
	b.draining = true
	b.mux.Unlock()

	defer func() {
		b.mux.Lock()
		b.draining = false
		b.mux.Unlock()
	}()

	for {
		b.mux.Lock()
		if len(b.queue) == 0 {
			b.mux.Unlock()
			return nil
		}
		event := b.queue[0]
		b.queue = b.queue[1:]
		groups := make([]string, len(b.groups))
		copy(groups, b.groups)
		b.mux.Unlock()

		raw, err := events.Encode(event)
		if err != nil {
			return errors.Wrapf(err, "encode event %s", event.ID)
		}

		for _, group := range groups {
			b.mux.Lock()
			handler := b.handlers[group]
			b.mux.Unlock()
			if handler == nil {
				continue
			}
			if err := handler.HandleMessage(ctx, raw); err != nil {
				return errors.Wrapf(err, "deliver event %s to group %s", event.ID, group)
			}
		}
	}
}
