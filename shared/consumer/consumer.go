package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
)

// IdempotentConsumer is the consumption discipline every service wraps around
// its business reaction:
//
//  1. look up the consumption record for (consumer, eventId); on a hit, skip
//     the effect and re-publish the originally emitted follow-ups;
//  2. on a miss, apply the effect, persist the record with its follow-ups,
//     then publish them;
//  3. retry transient failures with bounded exponential backoff and park the
//     event in the dead-letter store when the budget is exhausted. Decode
//     errors and invalid transitions are parked immediately.
//
// A parked or applied event returns nil so the transport acknowledges it;
// any other error leaves the delivery unacknowledged for redelivery.
type IdempotentConsumer struct {
	applier     Applier
	records     ConsumptionStore
	deadLetters DeadLetterStore
	publisher   events.Publisher
	policy      RetryPolicy
	metrics     *Metrics
	log         *zap.Logger
}

// Option configures an IdempotentConsumer
type Option func(*IdempotentConsumer)

// WithRetryPolicy overrides the default retry policy
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *IdempotentConsumer) { c.policy = policy }
}

// WithMetrics attaches consumer counters
func WithMetrics(m *Metrics) Option {
	return func(c *IdempotentConsumer) { c.metrics = m }
}

// WithLogger attaches a logger
func WithLogger(log *zap.Logger) Option {
	return func(c *IdempotentConsumer) { c.log = log }
}

// New creates an idempotent consumer around a service's applier
func New(
	applier Applier,
	records ConsumptionStore,
	deadLetters DeadLetterStore,
	publisher events.Publisher,
	opts ...Option,
) *IdempotentConsumer {
	c := &IdempotentConsumer{
		applier:     applier,
		records:     records,
		deadLetters: deadLetters,
		publisher:   publisher,
		policy:      DefaultRetryPolicy(),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandlerID returns the consumer identity used for consumption records
func (c *IdempotentConsumer) HandlerID() string {
	return c.applier.ConsumerID()
}

// HandleMessage decodes raw transport bytes and handles the event. Decode
// failures are parked immediately with the original bytes preserved; the
// delivery is then acknowledged.
func (c *IdempotentConsumer) HandleMessage(ctx context.Context, raw []byte) error {
	event, err := events.Decode(raw)
	if err != nil {
		// Salvage whatever identifiers the envelope still yields so the
		// dead-letter entry is attributable.
		var probe struct {
			EventID string `json:"event_id"`
			OrderID string `json:"order_id"`
			Type    string `json:"type"`
		}
		_ = json.Unmarshal(raw, &probe)

		entry := &DeadLetterEntry{
			EventID:       models.ID(probe.EventID),
			OrderID:       models.ID(probe.OrderID),
			ConsumerID:    c.applier.ConsumerID(),
			Raw:           append(json.RawMessage(nil), raw...),
			AttemptCount:  1,
			LastError:     err.Error(),
			FirstFailedAt: time.Now().UTC(),
		}
		if perr := c.deadLetters.Park(ctx, entry); perr != nil {
			return errors.Wrap(perr, "park undecodable event")
		}

		c.countDeadLetter(events.Type(probe.Type))
		c.log.Warn("event parked: decode failed",
			zap.String("consumer", c.applier.ConsumerID()),
			zap.String("event_id", probe.EventID),
			zap.Error(err),
		)
		return nil
	}

	return c.Handle(ctx, event)
}

// Handle applies one delivery of a decoded event
func (c *IdempotentConsumer) Handle(ctx context.Context, event *events.Event) error {
	c.countConsumed(event.Type)

	var attempts int
	firstFailure := time.Time{}

	operation := func() error {
		attempts++
		err := c.process(ctx, event)
		if err == nil {
			return nil
		}
		if firstFailure.IsZero() {
			firstFailure = time.Now().UTC()
		}
		if IsTransient(err) {
			c.countRetry(event.Type)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, c.policy.backOff(ctx))
	if err == nil {
		return nil
	}

	// A cancelled context is a shutdown, not a poison event: leave the
	// delivery unacknowledged.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	return c.park(ctx, event, attempts, firstFailure, err)
}

// process is one attempt at consuming the event
func (c *IdempotentConsumer) process(ctx context.Context, event *events.Event) error {
	record, err := c.records.Get(ctx, c.applier.ConsumerID(), event.ID)
	if err != nil {
		return Transient(errors.Wrap(err, "read consumption record"))
	}

	if record != nil {
		// Safe redelivery: the effect already happened. Re-emit the original
		// follow-ups so downstream dedup still sees the same identities.
		c.countDuplicate(event.Type)
		if len(record.FollowUps) > 0 {
			if err := c.publisher.Publish(ctx, record.FollowUps...); err != nil {
				return Transient(errors.Wrap(err, "republish follow-ups"))
			}
		}
		c.log.Debug("duplicate delivery skipped",
			zap.String("consumer", c.applier.ConsumerID()),
			zap.String("event_id", event.ID.String()),
		)
		return nil
	}

	followUps, err := c.applier.Apply(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, saga.ErrDuplicateEvent):
		c.countDuplicate(event.Type)
		return nil
	case errors.Is(err, saga.ErrOrderClosed):
		c.log.Info("late event for closed order discarded",
			zap.String("consumer", c.applier.ConsumerID()),
			zap.String("order_id", event.OrderID.String()),
			zap.String("event_type", event.Type.String()),
		)
		return nil
	default:
		return err
	}

	record = &ConsumptionRecord{
		ConsumerID: c.applier.ConsumerID(),
		EventID:    event.ID,
		OrderID:    event.OrderID,
		FollowUps:  followUps,
		AppliedAt:  time.Now().UTC(),
	}
	if err := c.records.Put(ctx, record); err != nil {
		return Transient(errors.Wrap(err, "write consumption record"))
	}
	c.countApplied(event.Type)

	if len(followUps) > 0 {
		// A failure here retries process(); the record written above then
		// routes the retry through the replay branch.
		if err := c.publisher.Publish(ctx, followUps...); err != nil {
			return Transient(errors.Wrap(err, "publish follow-ups"))
		}
	}

	return nil
}

// park moves an event to the dead-letter store. No consumption record is
// written, so a manual replay after remediation re-triggers processing.
func (c *IdempotentConsumer) park(ctx context.Context, event *events.Event, attempts int, firstFailure time.Time, cause error) error {
	raw, err := events.Encode(event)
	if err != nil {
		return errors.Wrap(err, "encode event for dead-letter")
	}
	if firstFailure.IsZero() {
		firstFailure = time.Now().UTC()
	}

	entry := &DeadLetterEntry{
		EventID:       event.ID,
		OrderID:       event.OrderID,
		ConsumerID:    c.applier.ConsumerID(),
		Raw:           raw,
		AttemptCount:  attempts,
		LastError:     cause.Error(),
		FirstFailedAt: firstFailure,
	}
	if err := c.deadLetters.Park(ctx, entry); err != nil {
		return errors.Wrap(err, "park event")
	}

	c.countDeadLetter(event.Type)
	c.log.Warn("event parked after processing gave up",
		zap.String("consumer", c.applier.ConsumerID()),
		zap.String("event_id", event.ID.String()),
		zap.String("order_id", event.OrderID.String()),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return nil
}

func (c *IdempotentConsumer) countConsumed(typ events.Type) {
	if c.metrics != nil {
		c.metrics.Consumed.WithLabelValues(c.applier.ConsumerID(), typ.String()).Inc()
	}
}

func (c *IdempotentConsumer) countApplied(typ events.Type) {
	if c.metrics != nil {
		c.metrics.Applied.WithLabelValues(c.applier.ConsumerID(), typ.String()).Inc()
	}
}

func (c *IdempotentConsumer) countDuplicate(typ events.Type) {
	if c.metrics != nil {
		c.metrics.Duplicates.WithLabelValues(c.applier.ConsumerID(), typ.String()).Inc()
	}
}

func (c *IdempotentConsumer) countRetry(typ events.Type) {
	if c.metrics != nil {
		c.metrics.Retries.WithLabelValues(c.applier.ConsumerID(), typ.String()).Inc()
	}
}

func (c *IdempotentConsumer) countDeadLetter(typ events.Type) {
	if c.metrics != nil {
		c.metrics.DeadLetters.WithLabelValues(c.applier.ConsumerID(), typ.String()).Inc()
	}
}
