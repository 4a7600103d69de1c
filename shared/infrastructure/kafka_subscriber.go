package infrastructure

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler consumes one raw delivery from the transport. A nil return
// means the delivery is fully handled (applied, skipped as duplicate, or
// parked) and may be acknowledged.
type MessageHandler interface {
	HandleMessage(ctx context.Context, raw []byte) error
}

// NewKafkaReader builds a consumer-group reader for the order event topic.
// One reader owns a disjoint subset of partitions; orders never span
// partitions, so per-order processing stays sequential.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // synchronous commits, strictly after processing
	})
}

// KafkaEventSubscriber pumps a consumer-group reader into a MessageHandler.
// Offsets are committed only after the handler returns nil
// (commit-after-process); a failing delivery is retried in place rather than
// skipped, so later events of the same order are never applied first.
type KafkaEventSubscriber struct {
	reader     *kafka.Reader
	log        *zap.Logger
	retrySleep time.Duration
}

// NewKafkaEventSubscriber creates a new KafkaEventSubscriber
func NewKafkaEventSubscriber(reader *kafka.Reader, log *zap.Logger) *KafkaEventSubscriber {
	return &KafkaEventSubscriber{
		reader:     reader,
		log:        log,
		retrySleep: 5 * time.Second,
	}
}

// Run blocks consuming messages until ctx is cancelled
func (s *KafkaEventSubscriber) Run(ctx context.Context, handler MessageHandler) error {
	s.log.Info("kafka subscriber started",
		zap.String("topic", s.reader.Config().Topic),
		zap.String("group", s.reader.Config().GroupID),
	)

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("kafka subscriber stopped", zap.String("group", s.reader.Config().GroupID))
				return nil
			}
			s.log.Error("kafka fetch failed", zap.Error(err))
			continue
		}

		for {
			if err := handler.HandleMessage(ctx, msg.Value); err == nil {
				break
			} else {
				if ctx.Err() != nil {
					return nil
				}
				// Handler errors here mean even the dead-letter store is
				// unreachable. Hold the offset and try again; skipping would
				// break per-order ordering.
				s.log.Error("delivery not handled, holding offset",
					zap.String("key", string(msg.Key)),
					zap.Error(err),
				)
				select {
				case <-time.After(s.retrySleep):
				case <-ctx.Done():
					return nil
				}
			}
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("kafka commit failed", zap.Error(err))
		}
	}
}

// Close releases the underlying reader
func (s *KafkaEventSubscriber) Close() error {
	return s.reader.Close()
}
