package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/shared/config"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

// Transport bundles the event publisher and subscriber selected by
// configuration. Both transports preserve per-order ordering: Kafka through
// hash-partitioning on the orderId key, SNS/SQS FIFO through MessageGroupId.
type Transport struct {
	Publisher events.Publisher

	cfg *config.Config
	log *zap.Logger

	kafkaPublisher *KafkaEventPublisher
	sqsClient      *sqs.Client
}

// NewTransport builds the transport named by cfg.Transport ("kafka" or "sns")
func NewTransport(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Transport, error) {
	t := &Transport{cfg: cfg, log: log}

	switch cfg.Transport {
	case "sns", "sqs":
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		t.Publisher = NewSNSEventPublisher(NewSNSClient(awsCfg, cfg.AWS.EndpointSNS), cfg.AWS.SNSTopicArn)
		t.sqsClient = NewSQSClient(awsCfg, cfg.AWS.EndpointSQS)

	case "kafka":
		writer := NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		t.kafkaPublisher = NewKafkaEventPublisher(writer, log)
		t.Publisher = t.kafkaPublisher

	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}

	return t, nil
}

// Run consumes the order event stream into handler until ctx is cancelled
func (t *Transport) Run(ctx context.Context, handler MessageHandler) error {
	switch t.cfg.Transport {
	case "sns", "sqs":
		sub := NewSQSEventSubscriber(t.sqsClient, t.cfg.AWS.SQSQueueURL, handler, t.log)
		if err := sub.Start(ctx); err != nil {
			return errors.Wrap(err, "start SQS subscriber")
		}
		<-ctx.Done()
		return sub.Stop()

	default:
		reader := NewKafkaReader(t.cfg.Kafka.Brokers, t.cfg.Kafka.Topic, t.cfg.Kafka.GroupID)
		sub := NewKafkaEventSubscriber(reader, t.log)
		defer sub.Close()
		return sub.Run(ctx, handler)
	}
}

// Close releases publisher resources
func (t *Transport) Close() error {
	if t.kafkaPublisher != nil {
		return t.kafkaPublisher.Close()
	}
	return nil
}
