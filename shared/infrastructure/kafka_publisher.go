package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

var _ events.Publisher = (*KafkaEventPublisher)(nil)

// NewKafkaWriter builds a writer for the order event topic. The hash
// balancer keyed by orderId is what pins all events of one order to one
// partition, so consumers observe them in emission order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaEventPublisher implements events.Publisher on a Kafka topic
type KafkaEventPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaEventPublisher creates a new KafkaEventPublisher
func NewKafkaEventPublisher(writer *kafka.Writer, log *zap.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer, log: log}
}

// Publish writes events keyed by their order so partition ordering holds
func (p *KafkaEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(evts))
	for i, event := range evts {
		data, err := events.Encode(event)
		if err != nil {
			return errors.Wrapf(err, "encode event %s", event.ID)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(events.PartitionKey(event.OrderID)),
			Value: data,
		}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("kafka publish failed",
			zap.Int("events", len(evts)),
			zap.Error(err),
		)
		return errors.Wrap(err, "write kafka messages")
	}

	for _, event := range evts {
		p.log.Debug("event published",
			zap.String("event_id", event.ID.String()),
			zap.String("order_id", event.OrderID.String()),
			zap.String("type", event.Type.String()),
		)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
