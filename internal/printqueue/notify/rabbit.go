package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const routingPrefix = "print.pending."

// RoutingKey is the topic an owner's pending events are published under.
// The owner id is base64url encoded into a single topic word so that dots
// and wildcards in it cannot widen a binding to other owners.
func RoutingKey(ownerID string) string {
	return routingPrefix + base64.RawURLEncoding.EncodeToString([]byte(ownerID))
}

// AMQPClient is the part of shared/rabbitmq.Client the notifier uses.
type AMQPClient interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
	Subscribe(bindingKey string) (<-chan amqp.Delivery, func() error, error)
}

// RabbitNotifier carries pending events between processes over a topic
// exchange.
type RabbitNotifier struct {
	client AMQPClient
	logger *slog.Logger
}

// NewRabbitNotifier creates a notifier on top of an AMQP client.
func NewRabbitNotifier(client AMQPClient, logger *slog.Logger) *RabbitNotifier {
	return &RabbitNotifier{client: client, logger: logger}
}

// PublishPending publishes event under the owner's routing key.
func (n *RabbitNotifier) PublishPending(ctx context.Context, event domain.PendingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal pending event: %w", err)
	}
	return n.client.Publish(ctx, RoutingKey(event.OwnerID), body, "application/json")
}

// Subscribe consumes the owner's events from a private queue.
func (n *RabbitNotifier) Subscribe(ctx context.Context, ownerID string, fn Handler) (func(), error) {
	deliveries, closeQueue, err := n.client.Subscribe(RoutingKey(ownerID))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-deliveries:
				if !ok {
					n.logger.Warn("Pending event subscription closed by broker",
						slog.String("owner_id", ownerID),
					)
					return
				}
				n.dispatch(msg, fn)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
			if err := closeQueue(); err != nil {
				n.logger.Debug("Failed to close subscription channel", slog.Any("error", err))
			}
		})
	}, nil
}

func (n *RabbitNotifier) dispatch(msg amqp.Delivery, fn Handler) {
	var event domain.PendingEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		n.logger.Error("Failed to unmarshal pending event",
			slog.String("routing_key", msg.RoutingKey),
			slog.Any("error", err),
		)
		return
	}
	fn(event)
}
