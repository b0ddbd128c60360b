// Package amqp publishes security alerts to RabbitMQ so downstream
// consumers (paging, SIEM) can react without subscribing to MQTT.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// ErrClosed is returned when publishing on a closed Publisher.
var ErrClosed = errors.New("amqp: publisher closed")

// Publisher holds one connection and channel to the broker and publishes
// persistent JSON messages to a topic exchange.
//
// Thread Safety:
//   - Publish is safe for concurrent use; calls are serialised on the channel.
type Publisher struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string

	mu     sync.Mutex
	closed bool
}

// Dial connects to the broker and declares the durable alert exchange.
func Dial(cfg config.AMQPConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &Publisher{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// Publish sends body with routing key "<routing_key>.<suffix>", or the
// bare routing key when suffix is empty. Messages are persistent.
func (p *Publisher) Publish(ctx context.Context, suffix string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	key := p.routingKey
	if suffix != "" {
		key = key + "." + suffix
	}

	if err := p.ch.PublishWithContext(ctx,
		p.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close closes the channel and connection. Safe to call more than once.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	_ = p.ch.Close()
	if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("amqp close: %w", err)
	}
	return nil
}
