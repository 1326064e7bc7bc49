package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-user-sync/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// exchangeName is the topic exchange where the host application publishes
// directory record events.
const exchangeName = "users.topic"

// SyncHandler turns one directory event into a delivery attempt
type SyncHandler interface {
	SyncUser(ctx context.Context, userID int64, eventType string, queueID *int64) models.DeliveryResult
}

// EventConsumer receives user created/updated events from the host
// application. It replaces the in-process event observer of a monolithic
// deployment.
type EventConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler SyncHandler
	logger  *slog.Logger
}

func NewEventConsumer(url string, handler SyncHandler, logger *slog.Logger) (*EventConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %v", err)
	}

	// QoS: Prefetch 1 ensures we process events one by one, maintaining strict order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %v", err)
	}

	return &EventConsumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		logger:  logger,
	}, nil
}

// Listen binds a durable queue to the user event routing keys and consumes
// until the context is canceled or the channel breaks.
func (c *EventConsumer) Listen(ctx context.Context) error {
	if err := c.channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %v", err)
	}

	// Declare Queue with durability to survive broker restarts
	q, err := c.channel.QueueDeclare("usersync.events", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %v", err)
	}

	if err := c.channel.QueueBind(q.Name, "user.#", exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %v", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %v", err)
	}

	c.logger.Info("Consumer is online and waiting for user events", "queue", q.Name, "exchange", exchangeName)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			var event models.UserEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				c.logger.Error("Failed to unmarshal user event", "error", err)
				d.Nack(false, false) // Drop malformed messages
				continue
			}

			if event.Event != models.EventUserCreated && event.Event != models.EventUserUpdated {
				c.logger.Warn("Ignoring unexpected event type", "event", event.Event)
				d.Ack(false)
				continue
			}

			// A failed sync still acks its event: retries belong to the
			// durable queue, and the triggering user operation must never
			// be replayed because the destination API is down.
			result := c.handler.SyncUser(ctx, event.UserID, event.Event, nil)
			if !result.Success {
				c.logger.Warn("Event-triggered sync failed, retry queued",
					"user_id", event.UserID,
					"event", event.Event,
					"error", result.Error,
				)
			}

			if err := d.Ack(false); err != nil {
				c.logger.Error("Failed to Ack user event", "user_id", event.UserID, "error", err)
			}
		}
	}
}

// Close gracefully terminates RabbitMQ resources
func (c *EventConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
