// Package events publishes library domain events to a RabbitMQ topic
// exchange.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the body of every published message.
type Envelope struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher sends events as persistent JSON messages keyed by event name.
// The zero value, and a Publisher built from an empty URL, drops every event.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
	now      func() time.Time
}

// NewPublisher dials url and declares a durable topic exchange. An empty url
// yields a publisher that discards events.
func NewPublisher(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{exchange: exchange, log: logger, now: time.Now}
	if url == "" {
		logger.Info().Msg("amqp url not set, domain events disabled")
		return p, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p.conn, p.ch = conn, ch
	logger.Info().Str("exchange", exchange).Msg("publishing domain events")
	return p, nil
}

// Enabled reports whether events reach a broker.
func (p *Publisher) Enabled() bool { return p != nil && p.ch != nil }

// Publish implements library.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, name string, payload any) error {
	if !p.Enabled() {
		return nil
	}
	msg, err := p.message(name, payload)
	if err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, name, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	p.log.Debug().Str("event", name).Str("message_id", msg.MessageId).Msg("event published")
	return nil
}

func (p *Publisher) message(name string, payload any) (amqp.Publishing, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	env := Envelope{ID: uuid.NewString(), Event: name, OccurredAt: now().UTC(), Payload: payload}
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Type:         name,
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
