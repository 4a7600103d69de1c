package saga

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// State is a position in the canonical order lifecycle. Every service applies
// the same transition table to its own projection; no component holds global
// saga state.
type State string

const (
	StateNone              State = ""
	StateCreated           State = "created"
	StateValidating        State = "validating"
	StateValidated         State = "validated"
	StateReserving         State = "reserving"
	StateReserved          State = "reserved"
	StatePaymentPending    State = "payment_pending"
	StatePaid              State = "paid"
	StateCompleted         State = "completed"
	StateValidationFailed  State = "validation_failed"
	StateReservationFailed State = "reservation_failed"
	StatePaymentFailed     State = "payment_failed"
	StateCancelling        State = "cancelling"
	StateCancelled         State = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s.
// Late events for a terminal order are discarded, never applied.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Failed reports whether s is a failure branch awaiting cancellation
func (s State) Failed() bool {
	switch s {
	case StateValidationFailed, StateReservationFailed, StatePaymentFailed:
		return true
	}
	return false
}

// ErrOrderClosed signals an event arriving after the order reached a terminal
// state. Not a protocol violation: the consumer logs and discards it.
var ErrOrderClosed = errors.New("order already in terminal state")

// ErrDuplicateEvent signals an exact redelivery of the event that caused the
// last transition. Not an error: the consumer short-circuits to a replay.
var ErrDuplicateEvent = errors.New("duplicate event")

// InvalidTransitionError marks an event that is valid on its own but cannot
// be applied to the current state and is not a recognized duplicate. It
// indicates a protocol violation upstream and is dead-lettered for manual
// inspection.
type InvalidTransitionError struct {
	OrderID   models.ID
	From      State
	EventType events.Type
}

// Error implements the error interface
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: event %s is not applicable in state %q", e.OrderID, e.EventType, e.From)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidTransitionError
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// transition maps one event type to the states it may be applied from and the
// state it leads to. Each (state, event) pair has at most one next state.
// Completion events accept both the pre-begin state and the local in-progress
// marker, so projections that never call Begin stay in sync with ones that do.
type transition struct {
	from map[State]bool
	to   State
}

func states(ss ...State) map[State]bool {
	m := make(map[State]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

var transitions = map[events.Type]transition{
	events.OrderCreatedEvent:               {states(StateNone), StateCreated},
	events.OrderValidatedEvent:             {states(StateCreated, StateValidating), StateValidated},
	events.OrderValidationFailedEvent:      {states(StateCreated, StateValidating), StateValidationFailed},
	events.InventoryReservedEvent:          {states(StateValidated, StateReserving), StateReserved},
	events.InventoryReservationFailedEvent: {states(StateValidated, StateReserving), StateReservationFailed},
	events.PaymentCapturedEvent:            {states(StateReserved, StatePaymentPending), StatePaid},
	events.PaymentFailedEvent:              {states(StateReserved, StatePaymentPending), StatePaymentFailed},
	events.ReleaseInventoryEvent:           {states(StatePaymentFailed, StateReservationFailed, StateCancelling), StateCancelling},
	events.InventoryReleasedEvent:          {states(StateCancelling, StatePaymentFailed), StateCancelling},
	events.OrderCompletedEvent:             {states(StatePaid), StateCompleted},
	events.OrderCancelledEvent:             {states(StateValidationFailed, StateReservationFailed, StatePaymentFailed, StateCancelling), StateCancelled},
}

// Next returns the state an event moves the order to from current.
// It does not know about duplicates or terminal discards; use Apply for the
// full consumption rule.
func Next(orderID models.ID, current State, typ events.Type) (State, error) {
	t, ok := transitions[typ]
	if !ok || !t.from[current] {
		return current, &InvalidTransitionError{OrderID: orderID, From: current, EventType: typ}
	}
	return t.to, nil
}

// Begin returns the local in-progress marker a service sets on its projection
// before performing the work a stage requires. ok is false when the state has
// no in-progress counterpart.
func Begin(current State) (State, bool) {
	switch {
	case current == StateCreated:
		return StateValidating, true
	case current == StateValidated:
		return StateReserving, true
	case current == StateReserved:
		return StatePaymentPending, true
	case current.Failed():
		return StateCancelling, true
	}
	return current, false
}

// Apply is the full per-event consumption rule:
//
//   - terminal orders accept and discard everything (ErrOrderClosed);
//   - an exact redelivery of the last applied event is a no-op
//     (ErrDuplicateEvent);
//   - anything else either transitions or is an InvalidTransitionError.
//
// lastEventID is the ID of the event that caused the projection's last
// transition.
func Apply(current State, lastEventID models.ID, event *events.Event) (State, error) {
	if current.Terminal() {
		return current, ErrOrderClosed
	}
	if !lastEventID.IsZero() && lastEventID == event.ID {
		return current, ErrDuplicateEvent
	}
	return Next(event.OrderID, current, event.Type)
}
