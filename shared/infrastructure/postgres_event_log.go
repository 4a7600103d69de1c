package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PostgresEventLog persists the ordered event stream of each order. The
// order-api appends every event it projects, so GET /orders/{id}/events can
// serve the order's full history for audit and replay.
type PostgresEventLog struct {
	db *sqlx.DB
}

// NewPostgresEventLog creates a new PostgresEventLog
func NewPostgresEventLog(db *sqlx.DB) *PostgresEventLog {
	return &PostgresEventLog{db: db}
}

// postgresEvent represents event in database
type postgresEvent struct {
	ID            string    `db:"id"`
	OrderID       string    `db:"order_id"`
	EventType     string    `db:"event_type"`
	SchemaVersion int       `db:"schema_version"`
	Payload       []byte    `db:"payload"`
	Metadata      []byte    `db:"metadata"`
	OccurredAt    time.Time `db:"occurred_at"`
	CausationID   string    `db:"causation_id"`
	CorrelationID string    `db:"correlation_id"`
	StreamVersion int       `db:"stream_version"`
}

// Append writes the event at the next stream position of its order. Appending
// an event ID that is already logged is a no-op, so redeliveries leave the
// stream untouched.
func (el *PostgresEventLog) Append(ctx context.Context, event *events.Event) error {
	tx, err := el.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.GetContext(ctx, &currentVersion,
		"SELECT COALESCE(MAX(stream_version), 0) FROM order_events WHERE order_id = $1",
		event.OrderID.String())
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to get current stream version")
	}

	pgEvent, err := el.toPostgres(event, currentVersion+1)
	if err != nil {
		return errors.Wrap(err, "failed to convert event")
	}

	query := `
		INSERT INTO order_events (
			id, order_id, event_type, schema_version, payload, metadata,
			occurred_at, causation_id, correlation_id, stream_version
		) VALUES (
			:id, :order_id, :event_type, :schema_version, :payload, :metadata,
			:occurred_at, :causation_id, :correlation_id, :stream_version
		)
		ON CONFLICT (id) DO NOTHING`

	if _, err = tx.NamedExecContext(ctx, query, pgEvent); err != nil {
		return errors.Wrap(err, "failed to insert event")
	}

	return tx.Commit()
}

// ListByOrder retrieves all events of an order in stream order
func (el *PostgresEventLog) ListByOrder(ctx context.Context, orderID models.ID) ([]*events.Event, error) {
	query := `
		SELECT id, order_id, event_type, schema_version, payload, metadata,
			   occurred_at, causation_id, correlation_id, stream_version
		FROM order_events
		WHERE order_id = $1
		ORDER BY stream_version ASC`

	var pgEvents []postgresEvent
	err := el.db.SelectContext(ctx, &pgEvents, query, orderID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list order events")
	}

	result := make([]*events.Event, len(pgEvents))
	for i, pgEvent := range pgEvents {
		event, err := el.toDomain(&pgEvent)
		if err != nil {
			return nil, err
		}
		result[i] = event
	}

	return result, nil
}

// ListByType retrieves events by type with pagination
func (el *PostgresEventLog) ListByType(ctx context.Context, eventType events.Type, offset, limit int) ([]*events.Event, error) {
	query := `
		SELECT id, order_id, event_type, schema_version, payload, metadata,
			   occurred_at, causation_id, correlation_id, stream_version
		FROM order_events
		WHERE event_type = $1
		ORDER BY occurred_at ASC
		LIMIT $2 OFFSET $3`

	var pgEvents []postgresEvent
	err := el.db.SelectContext(ctx, &pgEvents, query, string(eventType), limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events by type")
	}

	result := make([]*events.Event, len(pgEvents))
	for i, pgEvent := range pgEvents {
		event, err := el.toDomain(&pgEvent)
		if err != nil {
			return nil, err
		}
		result[i] = event
	}

	return result, nil
}

// toPostgres converts domain event to postgres model
func (el *PostgresEventLog) toPostgres(event *events.Event, streamVersion int) (*postgresEvent, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event metadata")
	}

	return &postgresEvent{
		ID:            event.ID.String(),
		OrderID:       event.OrderID.String(),
		EventType:     string(event.Type),
		SchemaVersion: event.SchemaVersion,
		Payload:       []byte(event.Payload),
		Metadata:      metadata,
		OccurredAt:    event.OccurredAt,
		CausationID:   event.CausationID.String(),
		CorrelationID: event.CorrelationID.String(),
		StreamVersion: streamVersion,
	}, nil
}

// toDomain converts postgres model to domain event
func (el *PostgresEventLog) toDomain(pgEvent *postgresEvent) (*events.Event, error) {
	var metadata events.Metadata
	if len(pgEvent.Metadata) > 0 {
		if err := json.Unmarshal(pgEvent.Metadata, &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal event metadata")
		}
	}

	return &events.Event{
		ID:            models.ID(pgEvent.ID),
		OrderID:       models.ID(pgEvent.OrderID),
		Type:          events.Type(pgEvent.EventType),
		SchemaVersion: pgEvent.SchemaVersion,
		Payload:       json.RawMessage(pgEvent.Payload),
		CausationID:   models.ID(pgEvent.CausationID),
		CorrelationID: models.ID(pgEvent.CorrelationID),
		OccurredAt:    pgEvent.OccurredAt,
		Metadata:      metadata,
	}, nil
}
