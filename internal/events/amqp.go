package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
)

// DefaultQueue carries every booking event; consumers switch on the message type.
const DefaultQueue = "booking.events"

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn, nil
}

// AMQPPublisher publishes events as persistent JSON messages to a durable queue
// through the default exchange. The connection is opened lazily and reopened
// after a failed publish.
type AMQPPublisher struct {
	url   string
	queue string
	dial  dialFunc

	mu   sync.Mutex
	ch   channel
	conn io.Closer
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{url: url, queue: queue, dial: dialAMQP}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event domain.BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}

	logger.ExternalServiceCall("rabbitmq", "publish", "queue", p.queue, "event_type", event.Type)
	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Type:         string(event.Type),
			Timestamp:    event.OccurredAt.UTC(),
			Body:         body,
		},
	)
	logger.ExternalServiceResult("rabbitmq", "publish", err, "queue", p.queue)
	if err != nil {
		p.reset()
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return nil
}

func (p *AMQPPublisher) connect() error {
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: queue declare: %w", err)
	}
	p.ch, p.conn = ch, conn
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// Handler processes one consumed event. Returning an error rejects the message.
type Handler func(ctx context.Context, event domain.BookingEvent) error

// AMQPConsumer reads booking events from a durable queue, reconnecting with
// backoff until its context is cancelled.
type AMQPConsumer struct {
	url      string
	queue    string
	prefetch int
	handler  Handler
}

func NewAMQPConsumer(url, queue string, prefetch int, handler Handler) *AMQPConsumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if prefetch <= 0 {
		prefetch = 50
	}
	return &AMQPConsumer{url: url, queue: queue, prefetch: prefetch, handler: handler}
}

// Run blocks until ctx is done.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.Warn("Event consumer failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Event consumer loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AMQPConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logger.Warn("Event consumer failed to set QoS", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	logger.Info("Event consumer started", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				logger.Error("Event handling failed", "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, false) // do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AMQPConsumer) handle(ctx context.Context, body []byte) error {
	event, err := DecodeEvent(body)
	if err != nil {
		return err
	}
	return c.handler(ctx, event)
}

// DecodeEvent parses a message body produced by AMQPPublisher.
func DecodeEvent(body []byte) (domain.BookingEvent, error) {
	var event domain.BookingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.BookingEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	switch event.Type {
	case domain.BookingCreated, domain.BookingUpdated, domain.BookingCancelled:
	default:
		return domain.BookingEvent{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
