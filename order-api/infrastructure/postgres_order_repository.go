package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/order-api/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *sqlx.DB
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

type postgresOrder struct {
	ID            string    `db:"id"`
	CustomerID    string    `db:"customer_id"`
	LineItems     []byte    `db:"line_items"`
	TotalAmount   int64     `db:"total_amount"`
	Currency      string    `db:"currency"`
	State         string    `db:"state"`
	LastEventID   string    `db:"last_event_id"`
	ReservationID string    `db:"reservation_id"`
	PaymentID     string    `db:"payment_id"`
	FailureReason string    `db:"failure_reason"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	Version       int       `db:"version"`
}

// FindByID returns the order projection, or nil when absent
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	var row postgresOrder
	err := r.db.GetContext(ctx, &row, `
		SELECT id, customer_id, line_items, total_amount, currency, state,
			   last_event_id, reservation_id, payment_id, failure_reason,
			   created_at, updated_at, version
		FROM orders
		WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find order")
	}
	return r.toDomain(&row)
}

// Save writes the order conditionally on its previous version
func (r *PostgresOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	row, err := r.toPostgres(order)
	if err != nil {
		return err
	}

	if order.Version == 1 {
		query := `
			INSERT INTO orders (
				id, customer_id, line_items, total_amount, currency, state,
				last_event_id, reservation_id, payment_id, failure_reason,
				created_at, updated_at, version
			) VALUES (
				:id, :customer_id, :line_items, :total_amount, :currency, :state,
				:last_event_id, :reservation_id, :payment_id, :failure_reason,
				:created_at, :updated_at, :version
			)
			ON CONFLICT (id) DO NOTHING`

		res, err := r.db.NamedExecContext(ctx, query, row)
		if err != nil {
			return errors.Wrap(err, "failed to insert order")
		}
		if inserted, err := res.RowsAffected(); err == nil && inserted == 0 {
			return saga.ErrStaleProjection
		}
		return nil
	}

	query := `
		UPDATE orders
		SET state = :state, last_event_id = :last_event_id,
			reservation_id = :reservation_id, payment_id = :payment_id,
			failure_reason = :failure_reason, updated_at = :updated_at,
			version = :version
		WHERE id = :id AND version = :old_version`

	res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             row.ID,
		"state":          row.State,
		"last_event_id":  row.LastEventID,
		"reservation_id": row.ReservationID,
		"payment_id":     row.PaymentID,
		"failure_reason": row.FailureReason,
		"updated_at":     row.UpdatedAt,
		"version":        row.Version,
		"old_version":    row.Version - 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if updated, err := res.RowsAffected(); err == nil && updated == 0 {
		return saga.ErrStaleProjection
	}
	return nil
}

func (r *PostgresOrderRepository) toPostgres(order *domain.Order) (*postgresOrder, error) {
	lineItems, err := json.Marshal(order.LineItems)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal line items")
	}

	return &postgresOrder{
		ID:            order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		LineItems:     lineItems,
		TotalAmount:   order.Total.Amount,
		Currency:      order.Total.Currency,
		State:         string(order.State),
		LastEventID:   order.LastEventID.String(),
		ReservationID: order.ReservationID.String(),
		PaymentID:     order.PaymentID.String(),
		FailureReason: order.FailureReason,
		CreatedAt:     order.Timestamps.CreatedAt,
		UpdatedAt:     order.Timestamps.UpdatedAt,
		Version:       order.Version.Int(),
	}, nil
}

func (r *PostgresOrderRepository) toDomain(row *postgresOrder) (*domain.Order, error) {
	var lineItems []events.LineItem
	if err := json.Unmarshal(row.LineItems, &lineItems); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal line items")
	}

	return &domain.Order{
		ID:            models.ID(row.ID),
		CustomerID:    models.ID(row.CustomerID),
		LineItems:     lineItems,
		Total:         models.NewMoney(row.TotalAmount, row.Currency),
		State:         saga.State(row.State),
		LastEventID:   models.ID(row.LastEventID),
		ReservationID: models.ID(row.ReservationID),
		PaymentID:     models.ID(row.PaymentID),
		FailureReason: row.FailureReason,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		Version: models.Version(row.Version),
	}, nil
}
