package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	contentTypeJSON = "application/json"
	// sourceHeader lets DLQ tooling tell manual jobs from automatic ones.
	sourceHeader = "x-job-source"
)

var (
	_ Publisher      = (*RabbitMQPublisher)(nil)
	_ EventPublisher = (*RabbitMQPublisher)(nil)
)

// RabbitMQPublisher sends publish jobs to work queues and events to the events exchange.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg PublishJobMessage) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	publishing, err := jobPublishing(msg, p.clock())
	if err != nil {
		return err
	}
	return p.send(ctx, "", queue, publishing)
}

func (p *RabbitMQPublisher) PublishEvent(ctx context.Context, routingKey string, payload []byte) error {
	if routingKey == "" {
		return fmt.Errorf("routing key is required")
	}
	return p.send(ctx, EventsExchange, routingKey, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.clock(),
		Body:         payload,
	})
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *RabbitMQPublisher) send(ctx context.Context, exchange, key string, publishing amqp.Publishing) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.PublishWithContext(ctx, exchange, key, false, false, publishing); err != nil {
		if exchange == "" {
			return fmt.Errorf("failed to publish message to queue %q: %w", key, err)
		}
		return fmt.Errorf("failed to publish event %q: %w", key, err)
	}
	return nil
}

func (p *RabbitMQPublisher) clock() time.Time {
	if p == nil || p.now == nil {
		return time.Now().UTC()
	}
	return p.now().UTC()
}

// jobPublishing validates msg and builds its persistent, prioritised envelope.
func jobPublishing(msg PublishJobMessage, now time.Time) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid publish job message: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal publish job message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   contentTypeJSON,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     msg.JobID,
		CorrelationId: msg.CorrelationID,
		Priority:      PriorityValue(msg.Source),
		Headers:       amqp.Table{sourceHeader: string(msg.Source)},
		Body:          body,
	}, nil
}
