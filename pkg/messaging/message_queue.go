package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chainapsis/oko-tss/pkg/logger"
)

// ErrPermanent marks a message the handler can never process; it is
// terminated instead of redelivered.
var ErrPermanent = errors.New("permanent messaging error")

// MessageQueue is a durable work queue over one JetStream stream.
type MessageQueue interface {
	Enqueue(ctx context.Context, topic string, message []byte, options *EnqueueOptions) error
	Dequeue(topic string, handler func(message []byte) error) error
	Close()
}

type EnqueueOptions struct {
	// IdempotentKey deduplicates publishes within the stream's dedup window.
	IdempotentKey string
}

// QueueManager owns the stream and builds per-consumer queues on it.
type QueueManager struct {
	streamName string
	js         jetstream.JetStream
}

func NewQueueManager(streamName string, subjects []string, nc *nats.Conn) (*QueueManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:        streamName,
		Description: "Stream for " + streamName,
		Subjects:    subjects,
		MaxBytes:    10 << 20,
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create jetstream stream %s: %w", streamName, err)
	}
	logger.Info("JetStream stream ready", "stream", streamName, "subjects", subjects)

	return &QueueManager{streamName: streamName, js: js}, nil
}

// NewMessageQueue builds a queue bound to one durable consumer filtered to
// filterSubject.
func (m *QueueManager) NewMessageQueue(consumerName, filterSubject string) (MessageQueue, error) {
	consumer, err := m.js.CreateOrUpdateConsumer(context.Background(), m.streamName, jetstream.ConsumerConfig{
		Name:           consumerName,
		Durable:        consumerName,
		MaxAckPending:  1000,
		AckWait:        30 * time.Second,
		AckPolicy:      jetstream.AckExplicitPolicy,
		FilterSubjects: []string{filterSubject},
		MaxDeliver:     3,
	})
	if err != nil {
		return nil, fmt.Errorf("create jetstream consumer %s: %w", consumerName, err)
	}

	return &messageQueue{consumerName: consumerName, js: m.js, consumer: consumer}, nil
}

// NewPublisherQueue builds a publish-only queue; no consumer is created.
func (m *QueueManager) NewPublisherQueue() MessageQueue {
	return &messageQueue{js: m.js}
}

type messageQueue struct {
	consumerName string
	js           jetstream.JetStream
	consumer     jetstream.Consumer
	consumeCtx   jetstream.ConsumeContext
}

func (mq *messageQueue) Enqueue(ctx context.Context, topic string, message []byte, options *EnqueueOptions) error {
	header := nats.Header{}
	if options != nil && options.IdempotentKey != "" {
		header.Add("Nats-Msg-Id", options.IdempotentKey)
	}

	_, err := mq.js.PublishMsg(ctx, &nats.Msg{
		Subject: topic,
		Data:    message,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("enqueue message on %s: %w", topic, err)
	}
	return nil
}

func (mq *messageQueue) Dequeue(topic string, handler func(message []byte) error) error {
	if mq.consumer == nil {
		return fmt.Errorf("queue %s is publish-only", topic)
	}

	c, err := mq.consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			if errors.Is(err, ErrPermanent) {
				if termErr := msg.Term(); termErr != nil {
					logger.Error("Failed to terminate message", termErr)
				}
				return
			}
			logger.Error("Message handler failed", err, "subject", msg.Subject())
			if nakErr := msg.Nak(); nakErr != nil {
				logger.Error("Failed to nak message", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error("Failed to ack message", ackErr)
		}
	})
	if err != nil {
		return err
	}
	mq.consumeCtx = c
	return nil
}

func (mq *messageQueue) Close() {
	if mq.consumeCtx != nil {
		mq.consumeCtx.Stop()
	}
}
