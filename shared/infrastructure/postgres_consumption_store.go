package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PostgresConsumptionStore implements consumer.ConsumptionStore using
// PostgreSQL. The primary key (consumer_id, event_id) makes Put
// first-writer-wins: a concurrent second insert is silently dropped.
type PostgresConsumptionStore struct {
	db *sqlx.DB
}

// NewPostgresConsumptionStore creates a new PostgresConsumptionStore
func NewPostgresConsumptionStore(db *sqlx.DB) *PostgresConsumptionStore {
	return &PostgresConsumptionStore{db: db}
}

type postgresConsumption struct {
	ConsumerID string    `db:"consumer_id"`
	EventID    string    `db:"event_id"`
	OrderID    string    `db:"order_id"`
	FollowUps  []byte    `db:"follow_ups"`
	AppliedAt  time.Time `db:"applied_at"`
}

// Get returns the consumption record for (consumerID, eventID), or nil when
// the event has not been consumed yet.
func (cs *PostgresConsumptionStore) Get(ctx context.Context, consumerID string, eventID models.ID) (*consumer.ConsumptionRecord, error) {
	query := `
		SELECT consumer_id, event_id, order_id, follow_ups, applied_at
		FROM event_consumptions
		WHERE consumer_id = $1 AND event_id = $2`

	var row postgresConsumption
	err := cs.db.GetContext(ctx, &row, query, consumerID, eventID.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get consumption record")
	}

	var followUps []*events.Event
	if len(row.FollowUps) > 0 {
		if err := json.Unmarshal(row.FollowUps, &followUps); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal follow-up events")
		}
	}

	return &consumer.ConsumptionRecord{
		ConsumerID: row.ConsumerID,
		EventID:    models.ID(row.EventID),
		OrderID:    models.ID(row.OrderID),
		FollowUps:  followUps,
		AppliedAt:  row.AppliedAt,
	}, nil
}

// Put stores the consumption record. An existing record for the same
// (consumer, event) pair is kept untouched.
func (cs *PostgresConsumptionStore) Put(ctx context.Context, record *consumer.ConsumptionRecord) error {
	followUps, err := json.Marshal(record.FollowUps)
	if err != nil {
		return errors.Wrap(err, "failed to marshal follow-up events")
	}

	query := `
		INSERT INTO event_consumptions (consumer_id, event_id, order_id, follow_ups, applied_at)
		VALUES (:consumer_id, :event_id, :order_id, :follow_ups, :applied_at)
		ON CONFLICT (consumer_id, event_id) DO NOTHING`

	_, err = cs.db.NamedExecContext(ctx, query, &postgresConsumption{
		ConsumerID: record.ConsumerID,
		EventID:    record.EventID.String(),
		OrderID:    record.OrderID.String(),
		FollowUps:  followUps,
		AppliedAt:  record.AppliedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to insert consumption record")
	}
	return nil
}

// PurgeOlderThan removes records applied before the cutoff and reports how
// many were deleted.
func (cs *PostgresConsumptionStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := cs.db.ExecContext(ctx,
		"DELETE FROM event_consumptions WHERE applied_at < $1", cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge consumption records")
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count purged records")
	}
	return purged, nil
}

// ConsumptionJanitor periodically purges consumption records older than the
// retention window. Events redelivered after the window are reprocessed, so
// retention must exceed the broker's maximum redelivery horizon.
type ConsumptionJanitor struct {
	store     consumer.ConsumptionStore
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
}

// NewConsumptionJanitor creates a janitor with the given retention window
func NewConsumptionJanitor(store consumer.ConsumptionStore, retention, interval time.Duration, log *zap.Logger) *ConsumptionJanitor {
	return &ConsumptionJanitor{store: store, retention: retention, interval: interval, log: log}
}

// Run purges on a ticker until the context is cancelled
func (j *ConsumptionJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := j.store.PurgeOlderThan(ctx, time.Now().Add(-j.retention))
			if err != nil {
				j.log.Error("consumption purge failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				j.log.Info("purged consumption records", zap.Int64("count", purged))
			}
		}
	}
}
