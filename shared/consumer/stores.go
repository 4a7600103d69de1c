package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// ConsumptionRecord proves a (consumer, event) pair was applied. It stores
// the follow-up events emitted on first application so a redelivery re-emits
// them with their original IDs instead of producing new side effects.
// Records are append-only and garbage-collected after the transport's
// redelivery window has passed.
type ConsumptionRecord struct {
	ConsumerID string          `json:"consumer_id"`
	EventID    models.ID       `json:"event_id"`
	OrderID    models.ID       `json:"order_id"`
	FollowUps  []*events.Event `json:"follow_ups,omitempty"`
	AppliedAt  time.Time       `json:"applied_at"`
}

// ConsumptionStore persists consumption records
type ConsumptionStore interface {
	// Get returns the record for (consumerID, eventID), or nil when the
	// event has not been applied yet.
	Get(ctx context.Context, consumerID string, eventID models.ID) (*ConsumptionRecord, error)

	// Put inserts a record. First writer wins; inserting an existing key is
	// not an error.
	Put(ctx context.Context, record *ConsumptionRecord) error

	// PurgeOlderThan removes records applied before horizon and returns how
	// many were dropped.
	PurgeOlderThan(ctx context.Context, horizon time.Time) (int64, error)
}

// DeadLetterEntry is an event parked after processing was given up on,
// together with the failure metadata an operator needs for remediation.
// Entries persist until explicit operator action removes them.
type DeadLetterEntry struct {
	EventID       models.ID       `json:"event_id"`
	OrderID       models.ID       `json:"order_id"`
	ConsumerID    string          `json:"consumer_id"`
	Raw           json.RawMessage `json:"raw"`
	AttemptCount  int             `json:"attempt_count"`
	LastError     string          `json:"last_error"`
	FirstFailedAt time.Time       `json:"first_failed_at"`
}

// DeadLetterStore parks events that exhausted their processing budget
type DeadLetterStore interface {
	Park(ctx context.Context, entry *DeadLetterEntry) error
	List(ctx context.Context, consumerID string, offset, limit int) ([]*DeadLetterEntry, error)

	// Find returns the entry for (consumerID, eventID), or nil when absent.
	Find(ctx context.Context, consumerID string, eventID models.ID) (*DeadLetterEntry, error)
	Remove(ctx context.Context, consumerID string, eventID models.ID) error
}

// Applier is the business reaction a service plugs into the idempotent
// consumer: apply the event to the local projection and return the follow-up
// events to emit. Projection writes must be conditional (version CAS), so a
// half-failed application can simply be retried.
//
// Appliers signal non-effects through the saga sentinels: ErrDuplicateEvent
// and ErrOrderClosed are absorbed, not escalated.
type Applier interface {
	ConsumerID() string
	Apply(ctx context.Context, event *events.Event) ([]*events.Event, error)
}

// TransientError wraps failures worth retrying: storage unavailable,
// transport timeouts. Everything not marked transient is treated as
// permanent and dead-lettered without retry.
type TransientError struct {
	Cause error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Cause)
}

// Unwrap exposes the underlying cause
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
