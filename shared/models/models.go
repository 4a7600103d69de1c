package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ID represents a unique identifier
type ID string

// GenerateUUID creates a new random ID
func GenerateUUID() ID {
	return ID(uuid.New().String())
}

// NewID creates an ID from string, validating UUID format
func NewID(id string) (ID, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", err
	}
	return ID(id), nil
}

// String returns string representation
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// Timestamps represents creation and update times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTimestamps creates timestamps set to now
func NewTimestamps() Timestamps {
	now := time.Now()
	return Timestamps{CreatedAt: now, UpdatedAt: now}
}

// Update refreshes the UpdatedAt timestamp
func (t Timestamps) Update() Timestamps {
	t.UpdatedAt = time.Now()
	return t
}

// Version is a monotonic counter used for optimistic concurrency.
// Stale writers lose the conditional write instead of taking a lock.
type Version int

// NewVersion returns the initial version of a fresh projection
func NewVersion() Version {
	return 1
}

// Next returns the version a successful write must advance to
func (v Version) Next() Version {
	return v + 1
}

// Int returns the version as a plain int for storage bindings
func (v Version) Int() int {
	return int(v)
}

// Money represents a fixed-point monetary amount tagged with a currency
type Money struct {
	Amount   int64  `json:"amount"`   // minor units (cents)
	Currency string `json:"currency"` // ISO currency code
}

// NewMoney creates a money value
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// IsZero checks if money is zero
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsPositive checks if money is strictly positive
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// Add adds two money values (must share a currency)
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, errors.New("currency mismatch")
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// MultiplyQty scales a unit price by a line item quantity
func (m Money) MultiplyQty(qty int) Money {
	return Money{Amount: m.Amount * int64(qty), Currency: m.Currency}
}

// Equals compares amount and currency
func (m Money) Equals(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}
