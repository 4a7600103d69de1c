package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// RedisConsumptionStore implements consumer.ConsumptionStore on Redis. Each
// record lives under its own key with the retention window as TTL, so Redis
// expires old records itself and PurgeOlderThan has nothing to do.
type RedisConsumptionStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisConsumptionStore creates a store whose records expire after the
// retention window
func NewRedisConsumptionStore(client *redis.Client, retention time.Duration) *RedisConsumptionStore {
	return &RedisConsumptionStore{client: client, retention: retention}
}

func consumptionKey(consumerID string, eventID models.ID) string {
	return fmt.Sprintf("consumption:%s:%s", consumerID, eventID.String())
}

// Get returns the stored record, or nil when the event has not been consumed
func (cs *RedisConsumptionStore) Get(ctx context.Context, consumerID string, eventID models.ID) (*consumer.ConsumptionRecord, error) {
	raw, err := cs.client.Get(ctx, consumptionKey(consumerID, eventID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get consumption record")
	}

	var record consumer.ConsumptionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal consumption record")
	}
	return &record, nil
}

// Put stores the record with SETNX semantics so the first writer wins
func (cs *RedisConsumptionStore) Put(ctx context.Context, record *consumer.ConsumptionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal consumption record")
	}

	key := consumptionKey(record.ConsumerID, record.EventID)
	if err := cs.client.SetNX(ctx, key, raw, cs.retention).Err(); err != nil {
		return errors.Wrap(err, "failed to store consumption record")
	}
	return nil
}

// PurgeOlderThan is a no-op; key TTLs enforce retention
func (cs *RedisConsumptionStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
