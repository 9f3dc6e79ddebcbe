package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the connection has been closed.
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	ExchangeName      string
	ExchangeType      string
	ExchangeDurable   bool
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	PublishRetries    int
	PublishRetryDelay time.Duration
}

// URL renders the AMQP connection URL.
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// Client publishes to one exchange and hands out per-subscriber queues
// bound to it.
type Client struct {
	config *Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		conn, err = amqp.DialConfig(c.config.URL(), amqp.Config{
			Heartbeat: c.config.Heartbeat,
			Locale:    "en_US",
		})
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		c.config.ExchangeName,    // name
		c.config.ExchangeType,    // type
		c.config.ExchangeDurable, // durable
		false,                    // auto-deleted
		false,                    // internal
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("exchange_type", c.config.ExchangeType),
	)

	return nil
}

// Publish sends body with routingKey, retrying with exponential backoff.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	maxRetries := c.config.PublishRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := c.config.PublishRetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = c.publishOnce(ctx, routingKey, body, contentType)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrNotConnected) || attempt == maxRetries {
			break
		}

		backoff := delay << attempt
		c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_after", backoff),
			slog.Any("error", lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed to publish message: %w", lastErr)
}

func (c *Client) publishOnce(ctx context.Context, routingKey string, body []byte, contentType string) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	return ch.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		routingKey,            // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType: contentType,
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
}

// Subscribe declares an exclusive, auto-deleted queue bound with bindingKey
// and consumes it on its own channel. Closing the returned function deletes
// the queue.
func (c *Client) Subscribe(bindingKey string) (<-chan amqp.Delivery, func() error, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil, nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, bindingKey, c.config.ExchangeName, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer tag
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Subscribed to RabbitMQ",
		slog.String("queue", queue.Name),
		slog.String("binding_key", bindingKey),
	)

	return deliveries, ch.Close, nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
		c.channel = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection", slog.Any("error", err))
			return err
		}
		c.conn = nil
	}

	c.logger.Info("RabbitMQ connection closed")
	return nil
}
