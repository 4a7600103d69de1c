package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

func newRedisStore(t *testing.T, retention time.Duration) (*RedisConsumptionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisConsumptionStore(client, retention), mr
}

func TestRedisConsumptionStore_GetPut(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	ctx := context.Background()

	record, err := store.Get(ctx, "validation-service", "550e8400-e29b-41d4-a716-446655440001")
	require.NoError(t, err)
	assert.Nil(t, record, "unseen event has no record")

	followUp, err := events.NewEvent("550e8400-e29b-41d4-a716-446655440000", events.OrderValidatedEvent, events.OrderValidatedPayload{})
	require.NoError(t, err)

	stored := &consumer.ConsumptionRecord{
		ConsumerID: "validation-service",
		EventID:    "550e8400-e29b-41d4-a716-446655440001",
		OrderID:    "550e8400-e29b-41d4-a716-446655440000",
		FollowUps:  []*events.Event{followUp},
		AppliedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, stored))

	record, err = store.Get(ctx, "validation-service", stored.EventID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, stored.OrderID, record.OrderID)
	require.Len(t, record.FollowUps, 1)
	assert.Equal(t, followUp.ID, record.FollowUps[0].ID)

	// Another consumer has its own key space.
	record, err = store.Get(ctx, "inventory-service", stored.EventID)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisConsumptionStore_FirstWriterWins(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	ctx := context.Background()

	first := &consumer.ConsumptionRecord{
		ConsumerID: "payment-service",
		EventID:    "550e8400-e29b-41d4-a716-446655440002",
		OrderID:    "550e8400-e29b-41d4-a716-446655440000",
	}
	require.NoError(t, store.Put(ctx, first))

	overwrite := &consumer.ConsumptionRecord{
		ConsumerID: "payment-service",
		EventID:    first.EventID,
		OrderID:    "550e8400-e29b-41d4-a716-446655440999",
	}
	require.NoError(t, store.Put(ctx, overwrite))

	record, err := store.Get(ctx, "payment-service", first.EventID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, first.OrderID, record.OrderID, "SETNX keeps the first record")
}

func TestRedisConsumptionStore_RetentionExpires(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	record := &consumer.ConsumptionRecord{
		ConsumerID: "order-api",
		EventID:    "550e8400-e29b-41d4-a716-446655440003",
		OrderID:    "550e8400-e29b-41d4-a716-446655440000",
	}
	require.NoError(t, store.Put(ctx, record))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "order-api", record.EventID)
	require.NoError(t, err)
	assert.Nil(t, got, "records expire after the retention window")
}
