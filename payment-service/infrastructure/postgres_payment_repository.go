package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/payment-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	db *sqlx.DB
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(db *sqlx.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

type postgresPayment struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	Amount    int64     `db:"amount"`
	Currency  string    `db:"currency"`
	Status    string    `db:"status"`
	FailCode  string    `db:"fail_code"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Save records a payment attempt. Payment rows are immutable; saving an
// already-recorded payment ID is a no-op.
func (r *PostgresPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, amount, currency, status, fail_code, created_at, updated_at)
		VALUES (:id, :order_id, :amount, :currency, :status, :fail_code, :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.NamedExecContext(ctx, query, r.toPostgres(payment))
	if err != nil {
		return errors.Wrap(err, "failed to insert payment")
	}
	return nil
}

// FindByID finds a payment by ID
func (r *PostgresPaymentRepository) FindByID(ctx context.Context, id models.ID) (*domain.Payment, error) {
	var row postgresPayment
	err := r.db.GetContext(ctx, &row, `
		SELECT id, order_id, amount, currency, status, fail_code, created_at, updated_at
		FROM payments
		WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}
	return r.toDomain(&row), nil
}

// FindByOrderID finds a payment by order ID
func (r *PostgresPaymentRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*domain.Payment, error) {
	var row postgresPayment
	err := r.db.GetContext(ctx, &row, `
		SELECT id, order_id, amount, currency, status, fail_code, created_at, updated_at
		FROM payments
		WHERE order_id = $1`, orderID.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment by order")
	}
	return r.toDomain(&row), nil
}

func (r *PostgresPaymentRepository) toPostgres(payment *domain.Payment) *postgresPayment {
	return &postgresPayment{
		ID:        payment.ID.String(),
		OrderID:   payment.OrderID.String(),
		Amount:    payment.Amount.Amount,
		Currency:  payment.Amount.Currency,
		Status:    string(payment.Status),
		FailCode:  payment.FailCode,
		CreatedAt: payment.Timestamps.CreatedAt,
		UpdatedAt: payment.Timestamps.UpdatedAt,
	}
}

func (r *PostgresPaymentRepository) toDomain(row *postgresPayment) *domain.Payment {
	return &domain.Payment{
		ID:       models.ID(row.ID),
		OrderID:  models.ID(row.OrderID),
		Amount:   models.NewMoney(row.Amount, row.Currency),
		Status:   domain.PaymentStatus(row.Status),
		FailCode: row.FailCode,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}
}
