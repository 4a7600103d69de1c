package saga

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// Projection is the minimal per-order state a service keeps to drive the
// transition table: current state and the event that caused it. Services with
// richer read models embed the same fields in their own aggregates.
type Projection struct {
	OrderID     models.ID         `json:"order_id"`
	State       State             `json:"state"`
	LastEventID models.ID         `json:"last_event_id"`
	Timestamps  models.Timestamps `json:"timestamps"`
	Version     models.Version    `json:"version"`
}

// NewProjection creates a projection for an order not seen before
func NewProjection(orderID models.ID) *Projection {
	return &Projection{
		OrderID:    orderID,
		State:      StateNone,
		Timestamps: models.NewTimestamps(),
		Version:    0,
	}
}

// Advance moves the projection to next as caused by event
func (p *Projection) Advance(event *events.Event, next State) {
	p.State = next
	p.LastEventID = event.ID
	p.Timestamps = p.Timestamps.Update()
	p.Version = p.Version.Next()
}

// ErrStaleProjection signals a conditional write that lost to a concurrent
// writer. The caller retries: the reload observes the winning version.
var ErrStaleProjection = errors.New("projection version conflict")

// ProjectionRepository persists per-order projections. Save is a conditional
// write on Version: an insert when the projection is fresh, otherwise an
// update that must match the previous version or fail with ErrStaleProjection.
type ProjectionRepository interface {
	FindByOrderID(ctx context.Context, orderID models.ID) (*Projection, error)
	Save(ctx context.Context, projection *Projection) error
}
