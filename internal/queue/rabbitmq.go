package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName = "publish.dlx"
	connectionName  = "publish-engine"
	connectTimeout  = 15 * time.Second

	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = 30 * time.Second
)

type exchangeSpec struct {
	name string
	kind string
}

type queueSpec struct {
	name string
	args amqp.Table
	// bindExchange and bindKey are empty for queues fed by the default exchange.
	bindExchange string
	bindKey      string
}

type topologySpec struct {
	exchanges []exchangeSpec
	queues    []queueSpec
}

// topology lists what the engine needs on the broker: the events exchange and,
// per work queue, a priority queue that dead-letters into its DLQ.
func topology() topologySpec {
	spec := topologySpec{
		exchanges: []exchangeSpec{
			{name: dlxExchangeName, kind: amqp.ExchangeDirect},
			{name: EventsExchange, kind: amqp.ExchangeTopic},
		},
	}

	for _, queueName := range WorkQueueNames() {
		dlqName := DLQName(queueName)
		spec.queues = append(spec.queues,
			queueSpec{name: dlqName, bindExchange: dlxExchangeName, bindKey: queueName},
			queueSpec{name: queueName, args: amqp.Table{
				"x-dead-letter-exchange":    dlxExchangeName,
				"x-dead-letter-routing-key": queueName,
				"x-max-priority":            queueMaxPriority,
			}},
		)
	}
	return spec
}

// RabbitMQ owns one broker connection, redials it with exponential backoff and
// declares the topology once per connection.
type RabbitMQ struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
	declared    bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := r.ensureConnected(ctx); err != nil {
			return nil, err
		}

		r.mu.RLock()
		conn, declared := r.conn, r.declared
		r.mu.RUnlock()
		if conn == nil {
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			// The connection died between the check and the call; redial once.
			continue
		}

		if !declared {
			if err := declareTopology(ch, topology()); err != nil {
				_ = ch.Close()
				return nil, err
			}
			r.mu.Lock()
			if r.conn == conn {
				r.declared = true
			}
			r.mu.Unlock()
		}
		return ch, nil
	}

	return nil, fmt.Errorf("failed to open rabbitmq channel")
}

func (r *RabbitMQ) ensureConnected(ctx context.Context) error {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return r.reconnect(ctx)
}

func (r *RabbitMQ) reconnect(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	var newConn *amqp.Connection
	dial := func() error {
		c, err := amqp.DialConfig(r.url, amqp.Config{
			Properties: amqp.Table{"connection_name": connectionName},
		})
		if err != nil {
			return err
		}
		newConn = c
		return nil
	}
	if err := backoff.Retry(dial, backoff.WithContext(newReconnectBackOff(), ctx)); err != nil {
		return fmt.Errorf("rabbitmq reconnect failed: %w", err)
	}

	r.mu.Lock()
	oldConn := r.conn
	r.conn = newConn
	r.declared = false
	r.mu.Unlock()

	if oldConn != nil && !oldConn.IsClosed() {
		_ = oldConn.Close()
	}
	return nil
}

// newReconnectBackOff retries until the caller's context ends.
func newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialInterval
	b.MaxInterval = reconnectMaxInterval
	b.MaxElapsedTime = 0
	return b
}

func declareTopology(ch *amqp.Channel, spec topologySpec) error {
	for _, ex := range spec.exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %q: %w", ex.name, err)
		}
	}

	for _, q := range spec.queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q.name, err)
		}
		if q.bindExchange == "" {
			continue
		}
		if err := ch.QueueBind(q.name, q.bindKey, q.bindExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", q.name, err)
		}
	}

	return nil
}
