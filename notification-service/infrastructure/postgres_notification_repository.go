package infrastructure

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/notification-service/domain"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PostgresNotificationRepository implements NotificationRepository using
// PostgreSQL
type PostgresNotificationRepository struct {
	db *sqlx.DB
}

// NewPostgresNotificationRepository creates a new PostgresNotificationRepository
func NewPostgresNotificationRepository(db *sqlx.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

type postgresNotification struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	Kind      string    `db:"kind"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Save records a notification; saving an existing ID is a no-op
func (r *PostgresNotificationRepository) Save(ctx context.Context, notification *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, order_id, kind, message, created_at, updated_at)
		VALUES (:id, :order_id, :kind, :message, :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.NamedExecContext(ctx, query, &postgresNotification{
		ID:        notification.ID.String(),
		OrderID:   notification.OrderID.String(),
		Kind:      string(notification.Kind),
		Message:   notification.Message,
		CreatedAt: notification.Timestamps.CreatedAt,
		UpdatedAt: notification.Timestamps.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to insert notification")
	}
	return nil
}

// FindByOrderID returns all notifications recorded for an order
func (r *PostgresNotificationRepository) FindByOrderID(ctx context.Context, orderID models.ID) ([]*domain.Notification, error) {
	var rows []postgresNotification
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, order_id, kind, message, created_at, updated_at
		FROM notifications
		WHERE order_id = $1
		ORDER BY created_at ASC`, orderID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}

	notifications := make([]*domain.Notification, len(rows))
	for i, row := range rows {
		notifications[i] = &domain.Notification{
			ID:      models.ID(row.ID),
			OrderID: models.ID(row.OrderID),
			Kind:    domain.NotificationKind(row.Kind),
			Message: row.Message,
			Timestamps: models.Timestamps{
				CreatedAt: row.CreatedAt,
				UpdatedAt: row.UpdatedAt,
			},
		}
	}
	return notifications, nil
}
