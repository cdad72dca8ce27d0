// Package rabbitmq implements the queue interfaces over a RabbitMQ broker.
// Durable exchange and queue plus persistent messages give submissions
// at-least-once delivery across broker restarts.
package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/queue"
)

// Publisher publishes job submissions to the jobs exchange.
type Publisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewPublisher opens a channel and declares the durable topology.
func NewPublisher(conn *amqp.Connection, cfg config.QueueConfig) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		return nil, err
	}

	return &Publisher{
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// Publish sends the submission durably to the broker.
func (p *Publisher) Publish(ctx context.Context, sub *queue.Submission) error {
	body, err := sub.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    sub.MessageID.String(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}

	return nil
}

// Close releases the channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}

// declareTopology declares the durable exchange, queue, and binding shared
// by publisher and consumer so either side can start first.
func declareTopology(ch *amqp.Channel, cfg config.QueueConfig) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		cfg.QueueName,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}
