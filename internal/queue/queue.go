package queue

import (
	"context"
	"fmt"
)

// Publisher publishes publish-job messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg PublishJobMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg PublishJobMessage) error

// Consumer consumes publish-job messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// EventPublisher emits domain events on the events exchange.
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey string, payload []byte) error
}

const (
	// PublishJobQueue carries deferred publish requests.
	PublishJobQueue = "publish.jobs"
	// EventsExchange is the topic exchange for publication and approval events.
	EventsExchange = "publish.events"

	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 3
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.publish.jobs.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return []string{PublishJobQueue}
}

// PriorityValue maps a job source to RabbitMQ message priority.
func PriorityValue(source JobSource) uint8 {
	switch source {
	case SourceManual:
		return 3
	case SourceApproval:
		return 2
	case SourceAuto:
		return 1
	default:
		return 0
	}
}
