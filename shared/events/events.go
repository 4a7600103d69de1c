package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// Type identifies an order event. The set is closed: consumers switch on it
// exhaustively and route anything unknown to the dead-letter store.
type Type string

const (
	OrderCreatedEvent               Type = "order.created"
	OrderValidatedEvent             Type = "order.validated"
	OrderValidationFailedEvent      Type = "order.validation.failed"
	InventoryReservedEvent          Type = "order.inventory.reserved"
	InventoryReservationFailedEvent Type = "order.inventory.failed"
	ReleaseInventoryEvent           Type = "order.inventory.release.requested"
	InventoryReleasedEvent          Type = "order.inventory.released"
	PaymentCapturedEvent            Type = "order.payment.captured"
	PaymentFailedEvent              Type = "order.payment.failed"
	OrderCompletedEvent             Type = "order.completed"
	OrderCancelledEvent             Type = "order.cancelled"
)

// String returns the wire name of the event type
func (t Type) String() string {
	return string(t)
}

// Metadata carries transport-level key/value pairs that travel with an event
// but are not part of its schema (receipt handles, trace context).
type Metadata map[string]string

// Get returns a metadata value
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Set stores a metadata value
func (m Metadata) Set(key, value string) {
	m[key] = value
}

// Clone copies the metadata
func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Event is the canonical envelope every service exchanges. Events are
// immutable once emitted; OrderID is also the partition key, so all events
// of one order are observed in emission order by any single consumer.
type Event struct {
	ID            models.ID       `json:"event_id"`
	OrderID       models.ID       `json:"order_id"`
	Type          Type            `json:"type"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
	CausationID   models.ID       `json:"causation_id,omitempty"`
	CorrelationID models.ID       `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Metadata      Metadata        `json:"metadata,omitempty"`
}

// NewEvent creates a fresh event with a random ID. Used at saga entry points
// (order intake); everything downstream should use NewFollowup so redelivered
// inputs reproduce identical output IDs.
func NewEvent(orderID models.ID, typ Type, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", typ)
	}

	id := models.GenerateUUID()
	return &Event{
		ID:            id,
		OrderID:       orderID,
		Type:          typ,
		SchemaVersion: schemaVersion(typ),
		Payload:       raw,
		CorrelationID: id,
		OccurredAt:    time.Now().UTC(),
		Metadata:      make(Metadata),
	}, nil
}

// NewFollowup creates the n-th event a consumer emits in reaction to cause.
// The ID is derived deterministically from (consumerID, cause.ID, n), which is
// what lets downstream deduplication absorb redeliveries: replaying the same
// input always yields byte-for-byte the same output identity.
func NewFollowup(consumerID string, cause *Event, n int, typ Type, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", typ)
	}

	correlationID := cause.CorrelationID
	if correlationID.IsZero() {
		correlationID = cause.ID
	}

	return &Event{
		ID:            DeriveID(consumerID, cause.ID, n),
		OrderID:       cause.OrderID,
		Type:          typ,
		SchemaVersion: schemaVersion(typ),
		Payload:       raw,
		CausationID:   cause.ID,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Metadata:      make(Metadata),
	}, nil
}

// derivedIDNamespace anchors UUIDv5 derivation of follow-up event IDs.
var derivedIDNamespace = uuid.MustParse("6f1c24fa-40b4-4a3c-9c5b-2e6d3a1c8f07")

// DeriveID computes the deterministic ID of the n-th follow-up event a
// consumer emits for a given input event.
func DeriveID(consumerID string, causeID models.ID, n int) models.ID {
	name := consumerID + "/" + causeID.String() + "/" + strconv.Itoa(n)
	return models.ID(uuid.NewSHA1(derivedIDNamespace, []byte(name)).String())
}

// UnmarshalPayload decodes the event payload into a registered payload shape
func (e *Event) UnmarshalPayload(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "unmarshal %s payload", e.Type)
	}
	return nil
}

// WithMetadata attaches a metadata entry
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata.Set(key, value)
	return e
}

// Clone copies the event, detaching metadata
func (e *Event) Clone() *Event {
	clone := *e
	clone.Metadata = e.Metadata.Clone()
	return &clone
}

// Publisher publishes events to the transport
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Subscriber feeds incoming events to a handler until the context ends.
// Implementations must acknowledge a delivery only after Handle returns nil.
type Subscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
	Close() error
}

// EventHandler handles a single delivery of an event
type EventHandler interface {
	HandlerID() string
	Handle(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface
type EventHandlerFunc struct {
	id string
	fn func(ctx context.Context, event *Event) error
}

// NewEventHandlerFunc creates a handler from a function
func NewEventHandlerFunc(id string, fn func(ctx context.Context, event *Event) error) *EventHandlerFunc {
	return &EventHandlerFunc{id: id, fn: fn}
}

// HandlerID returns the handler identity used for consumption records
func (h *EventHandlerFunc) HandlerID() string {
	return h.id
}

// Handle invokes the wrapped function
func (h *EventHandlerFunc) Handle(ctx context.Context, event *Event) error {
	return h.fn(ctx, event)
}

// DecodeError marks an event that can never be processed: malformed bytes,
// unknown type, or a schema version from the future. Always dead-lettered,
// never retried.
type DecodeError struct {
	Reason string
	Cause  error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode event: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("decode event: %s", e.Reason)
}

// Unwrap exposes the underlying cause
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsDecodeError reports whether err is (or wraps) a DecodeError
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
