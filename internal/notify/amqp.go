package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kursadbilgin/publish-engine/internal/queue"
)

const defaultMaxElapsed = 30 * time.Second

// AMQPNotifier publishes events to the events exchange, retrying transient
// broker errors with exponential backoff.
type AMQPNotifier struct {
	publisher  queue.EventPublisher
	newBackOff func() backoff.BackOff
}

func NewAMQPNotifier(publisher queue.EventPublisher) *AMQPNotifier {
	return &AMQPNotifier{
		publisher: publisher,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = defaultMaxElapsed
			return bo
		},
	}
}

func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return backoff.Retry(func() error {
		err := n.publisher.PublishEvent(ctx, event.Type.String(), payload)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(n.newBackOff(), ctx))
}
