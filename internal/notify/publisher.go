package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/campwise/energy-entitlement-worker/internal/mq"
)

// Message is the payload handed to the external notification service. That
// service owns template rendering and delivery; this worker only requests
// the send.
type Message struct {
	Address     string            `json:"address"`
	TemplateKey string            `json:"template_key"`
	Params      map[string]string `json:"params"`
}

// Publisher publishes notification requests to RabbitMQ
type Publisher struct {
	conn       *mq.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher creates a new notification publisher
func NewPublisher(conn *mq.Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// Send publishes one notification request. A nil error means the request
// was handed to the broker, not that the message was delivered to the
// guest.
func (p *Publisher) Send(ctx context.Context, address, templateKey string, params map[string]string) error {
	body, err := json.Marshal(Message{
		Address:     address,
		TemplateKey: templateKey,
		Params:      params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug("published notification request",
		zap.String("template_key", templateKey),
		zap.String("routing_key", p.routingKey),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
