package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/inventory-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PostgresStockRepository implements StockRepository using PostgreSQL
type PostgresStockRepository struct {
	db *sqlx.DB
}

// NewPostgresStockRepository creates a new PostgresStockRepository
func NewPostgresStockRepository(db *sqlx.DB) *PostgresStockRepository {
	return &PostgresStockRepository{db: db}
}

type postgresReservation struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	LineItems []byte    `db:"line_items"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Reserve holds stock for every line item and persists the reservation in one
// transaction. A reservation ID that already exists means the hold happened
// on an earlier delivery; the call is then a no-op.
func (r *PostgresStockRepository) Reserve(ctx context.Context, reservation *domain.Reservation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)", reservation.ID.String())
	if err != nil {
		return errors.Wrap(err, "failed to check reservation")
	}
	if exists {
		return nil
	}

	for _, item := range reservation.LineItems {
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_levels
			SET available = available - $1, updated_at = NOW()
			WHERE sku = $2 AND available >= $1`,
			item.Quantity, item.SKU)
		if err != nil {
			return errors.Wrap(err, "failed to decrement stock")
		}

		held, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "failed to count held rows")
		}
		if held == 0 {
			available, err := r.availableTx(ctx, tx, item.SKU)
			if err != nil {
				return err
			}
			return &domain.InsufficientStockError{
				SKU:       item.SKU,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}

	lineItems, err := json.Marshal(reservation.LineItems)
	if err != nil {
		return errors.Wrap(err, "failed to marshal line items")
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO reservations (id, order_id, line_items, status, created_at, updated_at)
		VALUES (:id, :order_id, :line_items, :status, :created_at, :updated_at)`,
		&postgresReservation{
			ID:        reservation.ID.String(),
			OrderID:   reservation.OrderID.String(),
			LineItems: lineItems,
			Status:    string(reservation.Status),
			CreatedAt: reservation.Timestamps.CreatedAt,
			UpdatedAt: reservation.Timestamps.UpdatedAt,
		})
	if err != nil {
		return errors.Wrap(err, "failed to insert reservation")
	}

	return tx.Commit()
}

// Release returns held stock and marks the reservation released
func (r *PostgresStockRepository) Release(ctx context.Context, orderID models.ID) (*domain.Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var row postgresReservation
	err = tx.GetContext(ctx, &row, `
		SELECT id, order_id, line_items, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1`, orderID.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find reservation")
	}

	reservation, err := r.toDomain(&row)
	if err != nil {
		return nil, err
	}
	if reservation.Status == domain.ReservationStatusReleased {
		return reservation, nil
	}

	for _, item := range reservation.LineItems {
		_, err := tx.ExecContext(ctx, `
			UPDATE stock_levels
			SET available = available + $1, updated_at = NOW()
			WHERE sku = $2`,
			item.Quantity, item.SKU)
		if err != nil {
			return nil, errors.Wrap(err, "failed to restock")
		}
	}

	reservation.Release()
	_, err = tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1, updated_at = $2
		WHERE id = $3`,
		string(reservation.Status), reservation.Timestamps.UpdatedAt, reservation.ID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to update reservation")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit release")
	}
	return reservation, nil
}

// FindByOrderID returns the order's reservation, or nil when absent
func (r *PostgresStockRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*domain.Reservation, error) {
	var row postgresReservation
	err := r.db.GetContext(ctx, &row, `
		SELECT id, order_id, line_items, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1`, orderID.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find reservation")
	}
	return r.toDomain(&row)
}

func (r *PostgresStockRepository) availableTx(ctx context.Context, tx *sqlx.Tx, sku string) (int, error) {
	var available int
	err := tx.GetContext(ctx, &available,
		"SELECT available FROM stock_levels WHERE sku = $1", sku)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read stock level")
	}
	return available, nil
}

func (r *PostgresStockRepository) toDomain(row *postgresReservation) (*domain.Reservation, error) {
	var lineItems []events.LineItem
	if err := json.Unmarshal(row.LineItems, &lineItems); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal line items")
	}

	return &domain.Reservation{
		ID:        models.ID(row.ID),
		OrderID:   models.ID(row.OrderID),
		LineItems: lineItems,
		Status:    domain.ReservationStatus(row.Status),
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}, nil
}
