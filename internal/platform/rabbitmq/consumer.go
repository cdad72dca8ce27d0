package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/queue"
)

// Consumer delivers job submissions to a handler with manual acknowledgement.
// A handler error nacks with requeue so the broker redelivers; malformed
// messages are nacked without requeue to keep poison messages out of the loop.
type Consumer struct {
	channel  *amqp.Channel
	queue    string
	prefetch int
	logger   *slog.Logger
}

// NewConsumer opens a channel, declares the durable topology, and sets the
// prefetch window. Prefetch should match the worker's job concurrency so
// the broker never hands a worker more jobs than it can run.
func NewConsumer(conn *amqp.Connection, cfg config.QueueConfig, prefetch int, logger *slog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		return nil, err
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &Consumer{
		channel:  ch,
		queue:    cfg.QueueName,
		prefetch: prefetch,
		logger:   logger.With("component", "queue_consumer"),
	}, nil
}

// Consume blocks, dispatching deliveries to the handler until the context
// is cancelled or the broker channel closes. Each delivery runs in its own
// goroutine; the Qos prefetch bounds how many run at once.
func (c *Consumer) Consume(ctx context.Context, handler queue.Handler) error {
	deliveries, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("queue consumer shutting down")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("broker channel closed")
				return fmt.Errorf("broker channel closed")
			}

			sub, err := queue.UnmarshalSubmission(delivery.Body)
			if err != nil {
				c.logger.Error("failed to unmarshal submission, dropping",
					"message_id", delivery.MessageId,
					"error", err)
				_ = delivery.Nack(false, false)
				continue
			}

			go func(sub *queue.Submission, delivery amqp.Delivery) {
				if err := handler(ctx, sub); err != nil {
					c.logger.Error("submission handler failed, requeueing",
						"job_id", sub.JobID,
						"message_id", sub.MessageID,
						"error", err)
					_ = delivery.Nack(false, true)
					return
				}
				_ = delivery.Ack(false)
			}(sub, delivery)
		}
	}
}

// Close releases the channel.
func (c *Consumer) Close() error {
	return c.channel.Close()
}
