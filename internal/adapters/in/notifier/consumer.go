package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orders/internal/adapters/out/envelope"
	"orders/internal/core/domain/model/order"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultQueue = "notifications.orders"

var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Channel is the subset of *amqp.Channel the consumer uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(
		ctx context.Context,
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
}

// EventHandler is implemented by *Handler.
type EventHandler interface {
	Handle(ctx context.Context, env envelope.Envelope) error
}

// Consumer reads order events with manual acknowledgements. Malformed messages are
// dropped, failed ones are requeued once and dropped on the second failure.
type Consumer struct {
	ch          Channel
	exchange    string
	queue       string
	handler     EventHandler
	prefetch    int
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewConsumer(ch Channel, exchange, queue string, handler EventHandler, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ch:          ch,
		exchange:    exchange,
		queue:       queue,
		handler:     handler,
		prefetch:    50,
		callTimeout: 10 * time.Second,
		logger:      logger.With("component", "notification_consumer", "queue", queue),
	}
}

// Setup declares the exchange and a durable queue bound to both order event types.
func (c *Consumer) Setup() error {
	if err := c.ch.ExchangeDeclare(c.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}

	q, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	for _, key := range []string{order.EventOrderCreated, order.EventOrderStatusUpdated} {
		if err = c.ch.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, q.Name, err)
		}
	}

	return c.ch.Qos(c.prefetch, 0, false)
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.InfoContext(ctx, "consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			c.Process(ctx, d)
		}
	}
}

// Process handles one delivery and settles it.
func (c *Consumer) Process(ctx context.Context, d amqp.Delivery) {
	env, err := envelope.Decode(d.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping malformed message", "error", err, "message_id", d.MessageId)
		_ = d.Nack(false, false)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	err = c.handler.Handle(callCtx, env)
	cancel()

	switch {
	case err == nil:
		_ = d.Ack(false)
	case IsPermanent(err):
		c.logger.WarnContext(ctx, "dropping unprocessable message", "error", err, "event_id", env.ID, "type", env.Type)
		_ = d.Nack(false, false)
	case d.Redelivered:
		c.logger.ErrorContext(ctx, "dropping message after retry", "error", err, "event_id", env.ID, "type", env.Type)
		_ = d.Nack(false, false)
	default:
		c.logger.WarnContext(ctx, "requeueing message", "error", err, "event_id", env.ID, "type", env.Type)
		_ = d.Nack(false, true)
	}
}
