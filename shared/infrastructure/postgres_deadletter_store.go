package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PostgresDeadLetterStore implements consumer.DeadLetterStore using
// PostgreSQL
type PostgresDeadLetterStore struct {
	db *sqlx.DB
}

// NewPostgresDeadLetterStore creates a new PostgresDeadLetterStore
func NewPostgresDeadLetterStore(db *sqlx.DB) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{db: db}
}

type postgresDeadLetter struct {
	ConsumerID    string    `db:"consumer_id"`
	EventID       string    `db:"event_id"`
	OrderID       string    `db:"order_id"`
	Raw           []byte    `db:"raw"`
	AttemptCount  int       `db:"attempt_count"`
	LastError     string    `db:"last_error"`
	FirstFailedAt time.Time `db:"first_failed_at"`
}

// Park stores a dead-lettered event. Parking the same event again keeps the
// original payload and first-failure time, bumping only the attempt count and
// last error.
func (ds *PostgresDeadLetterStore) Park(ctx context.Context, entry *consumer.DeadLetterEntry) error {
	query := `
		INSERT INTO dead_letters (consumer_id, event_id, order_id, raw, attempt_count, last_error, first_failed_at)
		VALUES (:consumer_id, :event_id, :order_id, :raw, :attempt_count, :last_error, :first_failed_at)
		ON CONFLICT (consumer_id, event_id) DO UPDATE SET
			attempt_count = dead_letters.attempt_count + EXCLUDED.attempt_count,
			last_error = EXCLUDED.last_error`

	_, err := ds.db.NamedExecContext(ctx, query, &postgresDeadLetter{
		ConsumerID:    entry.ConsumerID,
		EventID:       entry.EventID.String(),
		OrderID:       entry.OrderID.String(),
		Raw:           []byte(entry.Raw),
		AttemptCount:  entry.AttemptCount,
		LastError:     entry.LastError,
		FirstFailedAt: entry.FirstFailedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to park dead letter")
	}
	return nil
}

// List returns parked entries ordered by first failure, oldest first
func (ds *PostgresDeadLetterStore) List(ctx context.Context, consumerID string, offset, limit int) ([]*consumer.DeadLetterEntry, error) {
	query := `
		SELECT consumer_id, event_id, order_id, raw, attempt_count, last_error, first_failed_at
		FROM dead_letters
		WHERE consumer_id = $1
		ORDER BY first_failed_at ASC
		LIMIT $2 OFFSET $3`

	var rows []postgresDeadLetter
	err := ds.db.SelectContext(ctx, &rows, query, consumerID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dead letters")
	}

	entries := make([]*consumer.DeadLetterEntry, len(rows))
	for i, row := range rows {
		entries[i] = &consumer.DeadLetterEntry{
			ConsumerID:    row.ConsumerID,
			EventID:       models.ID(row.EventID),
			OrderID:       models.ID(row.OrderID),
			Raw:           json.RawMessage(row.Raw),
			AttemptCount:  row.AttemptCount,
			LastError:     row.LastError,
			FirstFailedAt: row.FirstFailedAt,
		}
	}
	return entries, nil
}

// Find returns the parked entry for (consumerID, eventID), or nil when absent
func (ds *PostgresDeadLetterStore) Find(ctx context.Context, consumerID string, eventID models.ID) (*consumer.DeadLetterEntry, error) {
	query := `
		SELECT consumer_id, event_id, order_id, raw, attempt_count, last_error, first_failed_at
		FROM dead_letters
		WHERE consumer_id = $1 AND event_id = $2`

	var row postgresDeadLetter
	err := ds.db.GetContext(ctx, &row, query, consumerID, eventID.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find dead letter")
	}

	return &consumer.DeadLetterEntry{
		ConsumerID:    row.ConsumerID,
		EventID:       models.ID(row.EventID),
		OrderID:       models.ID(row.OrderID),
		Raw:           json.RawMessage(row.Raw),
		AttemptCount:  row.AttemptCount,
		LastError:     row.LastError,
		FirstFailedAt: row.FirstFailedAt,
	}, nil
}

// Remove deletes a parked entry after a successful replay or discard
func (ds *PostgresDeadLetterStore) Remove(ctx context.Context, consumerID string, eventID models.ID) error {
	_, err := ds.db.ExecContext(ctx,
		"DELETE FROM dead_letters WHERE consumer_id = $1 AND event_id = $2",
		consumerID, eventID.String())
	if err != nil {
		return errors.Wrap(err, "failed to remove dead letter")
	}
	return nil
}
