package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/util"
)

type Config struct {
	URI           string
	PrefetchCount int           // default 32
	DialTimeout   time.Duration // default 5s
	RedialBackoff time.Duration // default 1s
	MaxRedialWait time.Duration // default 30s
}

// Client is a thin wrapper around one long-lived AMQP connection and channel.
// Each service holds one client for its lifetime.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects and opens a channel. Callers that need resilience wrap this in
// a redial loop (see DialWithRetry).
func Dial(cfg Config) (*Client, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := amqp.DialConfig(cfg.URI, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 32
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit qos: %w", err)
	}

	return &Client{conn: conn, ch: ch}, nil
}

// DialWithRetry keeps dialing with capped exponential backoff until it
// succeeds or ctx is cancelled. Transient broker outages are never fatal.
func DialWithRetry(ctx context.Context, cfg Config) (*Client, error) {
	backoff := cfg.RedialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxWait := cfg.MaxRedialWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}

	wait := backoff
	for {
		c, err := Dial(cfg)
		if err == nil {
			return c, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}
	}
}

func (c *Client) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// NotifyClose reports asynchronous connection loss.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// DeclareTopology declares the durable topic exchanges plus the dead-letter
// pair. Declarations are idempotent; every service calls this on startup.
func (c *Client) DeclareTopology() error {
	for _, ex := range []string{contracts.EventsExchange, contracts.CommandsExchange} {
		if err := c.ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	if err := c.ch.ExchangeDeclare(contracts.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.DeadLetterExchange, err)
	}
	if _, err := c.ch.QueueDeclare(contracts.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.DeadLetterQueue, err)
	}
	if err := c.ch.QueueBind(contracts.DeadLetterQueue, "", contracts.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", contracts.DeadLetterQueue, err)
	}
	return nil
}

// Binding attaches a routing pattern on an exchange to a queue.
type Binding struct {
	Exchange string
	Pattern  string
}

// DeclareSharedQueue declares a durable queue shared by competing consumer
// instances. Rejected messages flow to the dead-letter exchange.
func (c *Client) DeclareSharedQueue(name string, bindings ...Binding) (string, error) {
	args := amqp.Table{"x-dead-letter-exchange": contracts.DeadLetterExchange}
	q, err := c.ch.QueueDeclare(name, true, false, false, false, args)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q.Name, c.bind(q.Name, bindings)
}

// DeclareInstanceQueue declares an auto-delete queue private to this process
// instance, for fan-out consumers. The broker removes it on disconnect.
func (c *Client) DeclareInstanceQueue(prefix string, bindings ...Binding) (string, error) {
	name := prefix + "." + util.NewULID()
	args := amqp.Table{"x-dead-letter-exchange": contracts.DeadLetterExchange}
	q, err := c.ch.QueueDeclare(name, false, true, false, false, args)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q.Name, c.bind(q.Name, bindings)
}

func (c *Client) bind(queue string, bindings []Binding) error {
	for _, b := range bindings {
		if err := c.ch.QueueBind(queue, b.Pattern, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s via %q: %w", queue, b.Exchange, b.Pattern, err)
		}
	}
	return nil
}

// Publish sends a persistent message.
func (c *Client) Publish(ctx context.Context, exchange, key string, body []byte) error {
	return c.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// PublishEnvelope encodes and publishes an envelope on the exchange its name
// belongs to, stamped with the standard routing key.
func (c *Client) PublishEnvelope(ctx context.Context, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	key := contracts.RoutingKey(env.SiteID, env.RoomID, env.Name)
	return c.Publish(ctx, env.Name.Exchange(), key, body)
}

// Consume opens a manually-acked delivery stream for a queue.
func (c *Client) Consume(queue string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}
