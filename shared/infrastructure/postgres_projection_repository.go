package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// PostgresProjectionRepository implements saga.ProjectionRepository using
// PostgreSQL. Each service owns a projection table of the same shape; the
// table name is fixed at construction.
type PostgresProjectionRepository struct {
	db    *sqlx.DB
	table string
}

// NewPostgresProjectionRepository creates a repository over the given table
func NewPostgresProjectionRepository(db *sqlx.DB, table string) *PostgresProjectionRepository {
	return &PostgresProjectionRepository{db: db, table: table}
}

type postgresProjection struct {
	OrderID     string    `db:"order_id"`
	State       string    `db:"state"`
	LastEventID string    `db:"last_event_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	Version     int       `db:"version"`
}

// FindByOrderID returns the projection, or nil when the order is unseen
func (r *PostgresProjectionRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*saga.Projection, error) {
	query := fmt.Sprintf(`
		SELECT order_id, state, last_event_id, created_at, updated_at, version
		FROM %s
		WHERE order_id = $1`, r.table)

	var row postgresProjection
	err := r.db.GetContext(ctx, &row, query, orderID.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find projection")
	}

	return &saga.Projection{
		OrderID:     models.ID(row.OrderID),
		State:       saga.State(row.State),
		LastEventID: models.ID(row.LastEventID),
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		Version: models.Version(row.Version),
	}, nil
}

// Save writes the projection conditionally on its previous version
func (r *PostgresProjectionRepository) Save(ctx context.Context, projection *saga.Projection) error {
	row := &postgresProjection{
		OrderID:     projection.OrderID.String(),
		State:       string(projection.State),
		LastEventID: projection.LastEventID.String(),
		CreatedAt:   projection.Timestamps.CreatedAt,
		UpdatedAt:   projection.Timestamps.UpdatedAt,
		Version:     projection.Version.Int(),
	}

	if projection.Version == 1 {
		query := fmt.Sprintf(`
			INSERT INTO %s (order_id, state, last_event_id, created_at, updated_at, version)
			VALUES (:order_id, :state, :last_event_id, :created_at, :updated_at, :version)
			ON CONFLICT (order_id) DO NOTHING`, r.table)

		res, err := r.db.NamedExecContext(ctx, query, row)
		if err != nil {
			return errors.Wrap(err, "failed to insert projection")
		}
		if inserted, err := res.RowsAffected(); err == nil && inserted == 0 {
			return saga.ErrStaleProjection
		}
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET state = :state, last_event_id = :last_event_id, updated_at = :updated_at, version = :version
		WHERE order_id = :order_id AND version = :old_version`, r.table)

	res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"order_id":      row.OrderID,
		"state":         row.State,
		"last_event_id": row.LastEventID,
		"updated_at":    row.UpdatedAt,
		"version":       row.Version,
		"old_version":   row.Version - 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to update projection")
	}
	if updated, err := res.RowsAffected(); err == nil && updated == 0 {
		return saga.ErrStaleProjection
	}
	return nil
}
