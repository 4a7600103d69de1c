package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/NullPoint3rDev/event-driven-order/shared/events"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const snsMaxBatchSize = 10

// SNSEventPublisher implements events.Publisher on an SNS FIFO topic.
// MessageGroupId carries the partition key (orderId) and the event ID doubles
// as the deduplication ID, so the broker enforces both per-order ordering and
// publish-side dedup of deterministic follow-up IDs.
type SNSEventPublisher struct {
	client   *sns.Client
	topicArn string
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client *sns.Client, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
	}
}

// Publish publishes events in batches, concurrently across batches
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	batches := splitToChunks(evts, snsMaxBatchSize)

	gr, ctx := errgroup.WithContext(ctx)
	for _, batch := range batches {
		batch := batch
		gr.Go(func() error {
			return p.batchPublish(ctx, batch)
		})
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	requests := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		body, err := events.Encode(event)
		if err != nil {
			return errors.Wrapf(err, "encode event %s", event.ID)
		}

		attrs := map[string]types.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Type.String()),
			},
		}
		for k, v := range event.Metadata {
			if k == SQSMessageIDKey || k == SQSReceiptHandleKey {
				continue
			}
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}

		requests[i] = types.PublishBatchRequestEntry{
			Id:                     aws.String(event.ID.String()),
			Message:                aws.String(string(body)),
			MessageAttributes:      attrs,
			MessageGroupId:         aws.String(events.PartitionKey(event.OrderID)),
			MessageDeduplicationId: aws.String(event.ID.String()),
		}
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   &p.topicArn,
		PublishBatchRequestEntries: requests,
	})
	if err != nil {
		return errors.Wrap(err, "publish batch to SNS")
	}

	if len(res.Failed) > 0 {
		return errors.Errorf("SNS rejected %d of %d events", len(res.Failed), len(batch))
	}
	return nil
}

// splitToChunks splits a slice into chunks of the given size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
