// Package amqp publishes ledger events to a RabbitMQ topic exchange and
// lets tools tail them.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"tally/internal/ledger"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the client needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Client publishes ledger.Event values with the event type as routing key.
type Client struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	now      func() time.Time
}

var _ ledger.Publisher = (*Client)(nil)

// NewClient dials url and declares a durable topic exchange.
func NewClient(url, exchange string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client, err := newClient(ch, exchange)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

func newClient(ch channel, exchange string) (*Client, error) {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Client{channel: ch, exchange: exchange, now: time.Now}, nil
}

// Publish sends evt as a persistent JSON message.
func (c *Client) Publish(ctx context.Context, evt ledger.Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = c.now()
	}
	body, err := EncodeEvent(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchange,       // exchange
		string(evt.Type), // routing key
		false,            // mandatory
		false,            // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	slog.DebugContext(ctx, "Published ledger event",
		"event_type", evt.Type,
		"owner_id", evt.OwnerID,
		"exchange", c.exchange)
	return nil
}

// Subscribe binds an exclusive auto-delete queue to pattern and calls
// handler for every event until ctx is done. Undecodable messages are
// dropped; a handler error requeues the message.
func (c *Client) Subscribe(ctx context.Context, pattern string, handler func(ledger.Event) error) error {
	q, err := c.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.channel.QueueBind(q.Name, pattern, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Subscribed to ledger events", "exchange", c.exchange, "pattern", pattern)
	return consume(ctx, msgs, handler)
}

func consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler func(ledger.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			evt, err := DecodeEvent(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to decode ledger event", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(evt); err != nil {
				slog.ErrorContext(ctx, "Failed to handle ledger event", "error", err, "event_type", evt.Type)
				delivery.Nack(false, true)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
