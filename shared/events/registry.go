package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// LineItem is one position of an order
type LineItem struct {
	SKU       string       `json:"sku"`
	Quantity  int          `json:"quantity"`
	UnitPrice models.Money `json:"unit_price"`
}

// OrderCreatedPayload carries the full order data from the intake API
type OrderCreatedPayload struct {
	CustomerID string       `json:"customer_id"`
	LineItems  []LineItem   `json:"line_items"`
	Total      models.Money `json:"total"`
}

// OrderValidatedPayload echoes the validated order data downstream
type OrderValidatedPayload struct {
	LineItems []LineItem   `json:"line_items"`
	Total     models.Money `json:"total"`
}

// OrderValidationFailedPayload explains a rejected order
type OrderValidationFailedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// InventoryReservedPayload confirms a stock reservation
type InventoryReservedPayload struct {
	ReservationID models.ID    `json:"reservation_id"`
	LineItems     []LineItem   `json:"line_items"`
	Total         models.Money `json:"total"`
}

// InventoryReservationFailedPayload explains a failed reservation
type InventoryReservationFailedPayload struct {
	Reason string `json:"reason"`
	SKU    string `json:"sku,omitempty"`
}

// ReleaseInventoryPayload asks inventory to undo a committed reservation.
// Emitted by a later stage whose own work failed.
type ReleaseInventoryPayload struct {
	Reason string `json:"reason"`
}

// InventoryReleasedPayload confirms a reservation was undone
type InventoryReleasedPayload struct {
	ReservationID models.ID `json:"reservation_id"`
}

// PaymentCapturedPayload confirms a captured payment
type PaymentCapturedPayload struct {
	PaymentID models.ID    `json:"payment_id"`
	Amount    models.Money `json:"amount"`
}

// PaymentFailedPayload explains a failed capture
type PaymentFailedPayload struct {
	Reason string       `json:"reason"`
	Code   string       `json:"code"`
	Amount models.Money `json:"amount"`
}

// OrderCompletedPayload closes the saga on the success path
type OrderCompletedPayload struct {
	CompletedAt time.Time `json:"completed_at"`
}

// OrderCancelledPayload closes the saga on a failure path
type OrderCancelledPayload struct {
	Reason string `json:"reason"`
}

// payloadSpec is one registry entry: the highest schema version this build
// understands and a factory for the payload shape.
type payloadSpec struct {
	maxSchemaVersion int
	newPayload       func() interface{}
}

// registry is the closed event contract. Adding an event type here forces
// every consumer switch to acknowledge it.
var registry = map[Type]payloadSpec{
	OrderCreatedEvent:               {1, func() interface{} { return &OrderCreatedPayload{} }},
	OrderValidatedEvent:             {1, func() interface{} { return &OrderValidatedPayload{} }},
	OrderValidationFailedEvent:      {1, func() interface{} { return &OrderValidationFailedPayload{} }},
	InventoryReservedEvent:          {1, func() interface{} { return &InventoryReservedPayload{} }},
	InventoryReservationFailedEvent: {1, func() interface{} { return &InventoryReservationFailedPayload{} }},
	ReleaseInventoryEvent:           {1, func() interface{} { return &ReleaseInventoryPayload{} }},
	InventoryReleasedEvent:          {1, func() interface{} { return &InventoryReleasedPayload{} }},
	PaymentCapturedEvent:            {1, func() interface{} { return &PaymentCapturedPayload{} }},
	PaymentFailedEvent:              {1, func() interface{} { return &PaymentFailedPayload{} }},
	OrderCompletedEvent:             {1, func() interface{} { return &OrderCompletedPayload{} }},
	OrderCancelledEvent:             {1, func() interface{} { return &OrderCancelledPayload{} }},
}

// KnownType reports whether typ is part of the contract
func KnownType(typ Type) bool {
	_, ok := registry[typ]
	return ok
}

// schemaVersion returns the version producers stamp on new events of typ
func schemaVersion(typ Type) int {
	if spec, ok := registry[typ]; ok {
		return spec.maxSchemaVersion
	}
	return 1
}

// Encode serializes an event for the wire
func Encode(event *Event) ([]byte, error) {
	return json.Marshal(event)
}

// Decode parses and validates wire bytes into an Event. Any failure is a
// *DecodeError: the caller routes it to the dead-letter store instead of
// guessing or crashing. Unknown future schema versions fail closed.
func Decode(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Cause: err}
	}

	if event.ID.IsZero() {
		return nil, &DecodeError{Reason: "missing event_id"}
	}
	if event.OrderID.IsZero() {
		return nil, &DecodeError{Reason: "missing order_id"}
	}

	spec, ok := registry[event.Type]
	if !ok {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown event type %q", event.Type)}
	}

	if event.SchemaVersion > spec.maxSchemaVersion {
		return nil, &DecodeError{Reason: fmt.Sprintf(
			"%s schema version %d is newer than supported %d",
			event.Type, event.SchemaVersion, spec.maxSchemaVersion,
		)}
	}

	// Payload shapes are closed: unknown fields mean a contract drift that
	// must surface, not be silently dropped.
	dec := json.NewDecoder(bytes.NewReader(event.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(spec.newPayload()); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload", event.Type), Cause: err}
	}

	return &event, nil
}
