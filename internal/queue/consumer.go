package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ Consumer = (*RabbitMQConsumer)(nil)

// settlement is how a delivery is resolved with the broker.
type settlement int

const (
	settleAck settlement = iota
	// settleRequeue puts the job back for one more try.
	settleRequeue
	// settleDeadLetter routes the job to its DLQ.
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "dead_letter"
	}
}

// settle resolves a handled delivery. A job is requeued once; a job that
// fails again after redelivery is dead-lettered.
func settle(handlerErr error, redelivered bool) settlement {
	switch {
	case handlerErr == nil:
		return settleAck
	case redelivered:
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

// decodeJob parses and validates a delivery body.
func decodeJob(body []byte) (PublishJobMessage, error) {
	var msg PublishJobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}

// RabbitMQConsumer delivers publish jobs to a handler with manual acks.
// Malformed jobs go straight to the DLQ.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx ends, re-subscribing with backoff whenever the
// channel drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	b := backoff.WithContext(newReconnectBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		if err := c.consumeOnce(ctx, queue, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		b.Reset()
		return fmt.Errorf("consumer for %q stopped", queue)
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("consumer interrupted, resubscribing",
			zap.String("queue", queue),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeJob(d.Body)
	if err != nil {
		c.logger.Warn("dead-lettering malformed job",
			zap.Error(err),
			zap.String("jobId", msg.JobID),
			zap.String("contentId", msg.ContentID),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject malformed job: %w", rejectErr)
		}
		return nil
	}

	handlerErr := handler(ctx, msg)
	action := settle(handlerErr, d.Redelivered)
	if handlerErr != nil {
		c.logger.Warn("publish job failed",
			zap.String("jobId", msg.JobID),
			zap.String("contentId", msg.ContentID),
			zap.String("settlement", action.String()),
			zap.Error(handlerErr),
		)
	}

	switch action {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery: %w", action, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
