package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	SQSMessageIDKey     = "sqs_message_id"
	SQSReceiptHandleKey = "sqs_receipt_handle"
)

// sqsGroup is one batch slice sharing a MessageGroupId. Messages inside a
// group must be handled sequentially; groups are independent.
type sqsGroup struct {
	groupID  string
	messages []types.Message
}

type sqsResult struct {
	message types.Message
	err     error
}

// SQSEventSubscriber implements event subscription on an SQS FIFO queue.
// Readers fetch batches and split them by MessageGroupId (the orderId
// partition key); workers process whole groups so same-order messages are
// never reordered, while distinct orders proceed in parallel; cleaners
// delete handled messages and stretch visibility on failures.
type SQSEventSubscriber struct {
	mux      sync.RWMutex
	inbound  chan *sqsGroup
	outbound chan *sqsResult
	cancel   context.CancelFunc
	running  atomic.Bool
	options  *sqsSubscriberOptions

	client   *sqs.Client
	queueURL string
	handler  MessageHandler
	log      *zap.Logger
}

type sqsSubscriberOptions struct {
	workers                    int32
	readers                    int32
	cleaners                   int32
	maxNumberOfMessages        int32
	waitTimeSeconds            int32
	visibilityTimeout          int32
	sleepTimeAfterEmptyReceive time.Duration
	sleepTimeAfterError        time.Duration
	receiveCountRange          int32
	visibilityTimeoutOffset    int32
	maxVisibilityTimeout       int32
}

// SQSSubscriberOption configures the subscriber
type SQSSubscriberOption func(*sqsSubscriberOptions)

// WithWorkers sets how many order groups are processed concurrently
func WithWorkers(workers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) { o.workers = workers }
}

// WithReaders sets the number of receive loops
func WithReaders(readers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) { o.readers = readers }
}

// WithVisibilityTimeout sets the base visibility timeout in seconds
func WithVisibilityTimeout(timeout int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) { o.visibilityTimeout = timeout }
}

// NewSQSEventSubscriber creates a new SQS event subscriber
func NewSQSEventSubscriber(
	client *sqs.Client,
	queueURL string,
	handler MessageHandler,
	log *zap.Logger,
	opts ...SQSSubscriberOption,
) *SQSEventSubscriber {
	options := &sqsSubscriberOptions{
		workers:                    10,
		readers:                    1,
		cleaners:                   2,
		maxNumberOfMessages:        10,
		waitTimeSeconds:            15,
		visibilityTimeout:          30,
		sleepTimeAfterEmptyReceive: 10 * time.Second,
		sleepTimeAfterError:        20 * time.Second,
		receiveCountRange:          3,
		visibilityTimeoutOffset:    30,
		maxVisibilityTimeout:       900, // 15 minutes
	}
	for _, opt := range opts {
		opt(options)
	}

	return &SQSEventSubscriber{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		log:      log,
		inbound:  make(chan *sqsGroup, 10),
		outbound: make(chan *sqsResult, 10),
		options:  options,
	}
}

// Start launches the reader, worker and cleaner goroutines
func (s *SQSEventSubscriber) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.inbound = make(chan *sqsGroup, 10)
	s.outbound = make(chan *sqsResult, 10)

	for i := 0; i < int(s.options.workers); i++ {
		go s.startWorker(ctx)
	}
	for i := 0; i < int(s.options.readers); i++ {
		go s.startReader(ctx)
	}
	for i := 0; i < int(s.options.cleaners); i++ {
		go s.startCleaner(ctx)
	}

	s.running.Store(true)
	s.log.Info("sqs subscriber started", zap.String("queue", s.queueURL))
	return nil
}

// Stop halts all goroutines
func (s *SQSEventSubscriber) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running.Store(false)
	return nil
}

func (s *SQSEventSubscriber) startReader(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.read(ctx); err != nil {
				s.log.Error("sqs receive failed", zap.Error(err))
				select {
				case <-time.After(s.options.sleepTimeAfterError):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context) error {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		AttributeNames: []types.QueueAttributeName{
			"ApproximateReceiveCount",
			"MessageGroupId",
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return errors.Wrap(err, "receive messages from SQS")
	}

	if len(output.Messages) == 0 {
		select {
		case <-time.After(s.options.sleepTimeAfterEmptyReceive):
		case <-ctx.Done():
		}
		return nil
	}

	// Split the batch by group so one worker owns all messages of an order.
	groups := make(map[string]*sqsGroup)
	var order []string
	for _, message := range output.Messages {
		groupID := message.Attributes["MessageGroupId"]
		g, ok := groups[groupID]
		if !ok {
			g = &sqsGroup{groupID: groupID}
			groups[groupID] = g
			order = append(order, groupID)
		}
		g.messages = append(g.messages, message)
	}

	for _, groupID := range order {
		select {
		case s.inbound <- groups[groupID]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case group := <-s.inbound:
			if group == nil {
				continue
			}
			s.handleGroup(ctx, group)
		}
	}
}

// handleGroup processes one group's messages in order. After the first
// failure the remaining messages are surrendered unprocessed: applying them
// would reorder the group's stream.
func (s *SQSEventSubscriber) handleGroup(ctx context.Context, group *sqsGroup) {
	failed := false
	for _, message := range group.messages {
		var err error
		if failed {
			err = errors.New("earlier message of the same group failed")
		} else if message.Body == nil {
			err = errors.New("empty message body")
		} else {
			err = s.handler.HandleMessage(ctx, []byte(*message.Body))
		}
		if err != nil {
			failed = true
		}

		select {
		case s.outbound <- &sqsResult{message: message, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-s.outbound:
			if result == nil {
				continue
			}
			if err := s.clean(ctx, result); err != nil {
				s.log.Error("sqs cleanup failed", zap.Error(err))
			}
		}
	}
}

func (s *SQSEventSubscriber) clean(ctx context.Context, result *sqsResult) error {
	if result.err != nil {
		receiveCount, err := strconv.Atoi(result.message.Attributes["ApproximateReceiveCount"])
		if err != nil {
			receiveCount = 1
		}

		visibilityTimeout := s.options.visibilityTimeout
		visibilityTimeout += (int32(receiveCount) / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset
		if visibilityTimeout > s.options.maxVisibilityTimeout {
			visibilityTimeout = s.options.maxVisibilityTimeout
		}

		_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &s.queueURL,
			ReceiptHandle:     result.message.ReceiptHandle,
			VisibilityTimeout: visibilityTimeout,
		})
		if err != nil {
			return errors.Wrap(err, "extend visibility timeout")
		}
		return nil
	}

	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &s.queueURL,
		ReceiptHandle: result.message.ReceiptHandle,
	})
	if err != nil {
		return errors.Wrap(err, "delete message from SQS")
	}
	return nil
}
