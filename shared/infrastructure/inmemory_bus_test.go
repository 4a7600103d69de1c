package infrastructure

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

type recordingHandler struct {
	seen []*events.Event
	fail error
}

func (h *recordingHandler) HandleMessage(_ context.Context, raw []byte) error {
	if h.fail != nil {
		return h.fail
	}
	event, err := events.Decode(raw)
	if err != nil {
		return err
	}
	h.seen = append(h.seen, event)
	return nil
}

func TestInMemoryBus_DeliversToAllGroupsInOrder(t *testing.T) {
	bus := NewInMemoryBus()
	first := &recordingHandler{}
	second := &recordingHandler{}
	bus.Subscribe("validation-service", first)
	bus.Subscribe("inventory-service", second)

	created, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent, events.OrderCreatedPayload{})
	require.NoError(t, err)
	validated, err := events.NewFollowup("validation-service", created, 0, events.OrderValidatedEvent, events.OrderValidatedPayload{})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), created, validated))

	for _, h := range []*recordingHandler{first, second} {
		require.Len(t, h.seen, 2)
		assert.Equal(t, created.ID, h.seen[0].ID)
		assert.Equal(t, validated.ID, h.seen[1].ID)
	}
}

type republishingHandler struct {
	recordingHandler
	bus      *InMemoryBus
	followup *events.Event
}

func (h *republishingHandler) HandleMessage(ctx context.Context, raw []byte) error {
	if err := h.recordingHandler.HandleMessage(ctx, raw); err != nil {
		return err
	}
	if len(h.seen) == 1 {
		return h.bus.Publish(ctx, h.followup)
	}
	return nil
}

func TestInMemoryBus_FollowUpsDoNotOvertakeCause(t *testing.T) {
	bus := NewInMemoryBus()

	created, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent, events.OrderCreatedPayload{})
	require.NoError(t, err)
	validated, err := events.NewFollowup("validation-service", created, 0, events.OrderValidatedEvent, events.OrderValidatedPayload{})
	require.NoError(t, err)

	reactor := &republishingHandler{bus: bus, followup: validated}
	late := &recordingHandler{}
	bus.Subscribe("validation-service", reactor)
	bus.Subscribe("inventory-service", late)

	require.NoError(t, bus.Publish(context.Background(), created))

	// The late group must see the original event before the follow-up
	// published while the first group was handling it.
	require.Len(t, late.seen, 2)
	assert.Equal(t, created.ID, late.seen[0].ID)
	assert.Equal(t, validated.ID, late.seen[1].ID)
}

func TestInMemoryBus_HandlerErrorSurfaces(t *testing.T) {
	bus := NewInMemoryBus()
	bus.Subscribe("validation-service", &recordingHandler{fail: errors.New("handler down")})

	event, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderCreatedEvent, events.OrderCreatedPayload{})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler down")
}
