package application

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// ErrDeadLetterNotFound is returned when no parked entry matches the request
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// ErrDeadLetterUndecodable is returned when a parked entry cannot be replayed
// because its raw bytes never decoded; the operator can only discard it.
var ErrDeadLetterUndecodable = errors.New("dead letter cannot be decoded for replay")

// ListDeadLettersQuery pages through one consumer's parked events
type ListDeadLettersQuery struct {
	ConsumerID string `json:"consumer_id"`
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
}

// ListDeadLetters is the operator view over parked events
type ListDeadLetters struct {
	deadLetters consumer.DeadLetterStore
}

// NewListDeadLetters creates a new ListDeadLetters use case
func NewListDeadLetters(deadLetters consumer.DeadLetterStore) *ListDeadLetters {
	return &ListDeadLetters{deadLetters: deadLetters}
}

// Execute lists parked entries, oldest first
func (uc *ListDeadLetters) Execute(ctx context.Context, query *ListDeadLettersQuery) ([]*consumer.DeadLetterEntry, error) {
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return uc.deadLetters.List(ctx, query.ConsumerID, query.Offset, limit)
}

// ReplayDeadLetterCommand asks for one parked event to be re-published
type ReplayDeadLetterCommand struct {
	ConsumerID string `json:"consumer_id"`
	EventID    string `json:"event_id"`
}

// ReplayDeadLetter re-publishes a parked event after remediation. The entry
// is removed once the publish succeeds; consumption records shield every
// consumer that already applied the event.
type ReplayDeadLetter struct {
	deadLetters consumer.DeadLetterStore
	publisher   events.Publisher
	log         *zap.Logger
}

// NewReplayDeadLetter creates a new ReplayDeadLetter use case
func NewReplayDeadLetter(deadLetters consumer.DeadLetterStore, publisher events.Publisher, log *zap.Logger) *ReplayDeadLetter {
	return &ReplayDeadLetter{deadLetters: deadLetters, publisher: publisher, log: log}
}

// Execute replays one parked event
func (uc *ReplayDeadLetter) Execute(ctx context.Context, cmd *ReplayDeadLetterCommand) error {
	eventID, err := models.NewID(cmd.EventID)
	if err != nil {
		return errors.Wrap(err, "invalid event ID")
	}

	entry, err := uc.deadLetters.Find(ctx, cmd.ConsumerID, eventID)
	if err != nil {
		return errors.Wrap(err, "load dead letter")
	}
	if entry == nil {
		return ErrDeadLetterNotFound
	}

	event, err := events.Decode(entry.Raw)
	if err != nil {
		return ErrDeadLetterUndecodable
	}

	if err := uc.publisher.Publish(ctx, event); err != nil {
		return errors.Wrap(err, "republish event")
	}
	if err := uc.deadLetters.Remove(ctx, cmd.ConsumerID, eventID); err != nil {
		return errors.Wrap(err, "remove dead letter")
	}

	uc.log.Info("dead letter replayed",
		zap.String("consumer", cmd.ConsumerID),
		zap.String("event_id", cmd.EventID),
	)
	return nil
}

// DiscardDeadLetterCommand asks for one parked event to be dropped
type DiscardDeadLetterCommand struct {
	ConsumerID string `json:"consumer_id"`
	EventID    string `json:"event_id"`
}

// DiscardDeadLetter drops a parked event the operator deems unrecoverable
type DiscardDeadLetter struct {
	deadLetters consumer.DeadLetterStore
	log         *zap.Logger
}

// NewDiscardDeadLetter creates a new DiscardDeadLetter use case
func NewDiscardDeadLetter(deadLetters consumer.DeadLetterStore, log *zap.Logger) *DiscardDeadLetter {
	return &DiscardDeadLetter{deadLetters: deadLetters, log: log}
}

// Execute discards one parked event
func (uc *DiscardDeadLetter) Execute(ctx context.Context, cmd *DiscardDeadLetterCommand) error {
	eventID, err := models.NewID(cmd.EventID)
	if err != nil {
		return errors.Wrap(err, "invalid event ID")
	}

	entry, err := uc.deadLetters.Find(ctx, cmd.ConsumerID, eventID)
	if err != nil {
		return errors.Wrap(err, "load dead letter")
	}
	if entry == nil {
		return ErrDeadLetterNotFound
	}

	if err := uc.deadLetters.Remove(ctx, cmd.ConsumerID, eventID); err != nil {
		return errors.Wrap(err, "remove dead letter")
	}

	uc.log.Warn("dead letter discarded",
		zap.String("consumer", cmd.ConsumerID),
		zap.String("event_id", cmd.EventID),
		zap.String("last_error", entry.LastError),
	)
	return nil
}
