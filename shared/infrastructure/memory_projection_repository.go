package infrastructure

import (
	"context"
	"sync"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// MemoryProjectionRepository implements saga.ProjectionRepository in memory
// with the same conditional-write semantics as the Postgres repository. Used
// by tests and local single-process runs.
type MemoryProjectionRepository struct {
	mux         sync.RWMutex
	projections map[models.ID]saga.Projection
}

// NewMemoryProjectionRepository creates an empty repository
func NewMemoryProjectionRepository() *MemoryProjectionRepository {
	return &MemoryProjectionRepository{projections: make(map[models.ID]saga.Projection)}
}

// FindByOrderID returns a copy of the projection, or nil when absent
func (r *MemoryProjectionRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*saga.Projection, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	projection, ok := r.projections[orderID]
	if !ok {
		return nil, nil
	}
	return &projection, nil
}

// Save writes the projection conditionally on its previous version
func (r *MemoryProjectionRepository) Save(ctx context.Context, projection *saga.Projection) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	current, exists := r.projections[projection.OrderID]
	if projection.Version == 1 {
		if exists {
			return saga.ErrStaleProjection
		}
	} else if !exists || current.Version != projection.Version-1 {
		return saga.ErrStaleProjection
	}

	r.projections[projection.OrderID] = *projection
	return nil
}
