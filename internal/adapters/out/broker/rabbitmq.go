package broker

import (
	"context"
	"errors"
	"fmt"

	"orders/internal/core/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "orders.events"

var (
	ErrNotConfirmed  = errors.New("broker did not confirm message")
	ErrChannelClosed = errors.New("amqp channel is closed")
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
	IsClosed() bool
}

// RabbitPublisher implements ports.MessagePublisher over one AMQP channel in confirm mode.
type RabbitPublisher struct {
	ch       Channel
	exchange string
}

// NewRabbitPublisher declares the exchange and switches the channel to confirm mode.
func NewRabbitPublisher(ch Channel, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	return &RabbitPublisher{ch: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg ports.Message) error {
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.OccurredAt,
		Headers:      amqp.Table{"order-id": msg.Key},
		Body:         msg.Body,
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, msg.Type, false, false, pub)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", msg.Type, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s %s", ErrNotConfirmed, msg.Type, msg.ID)
	}
	return nil
}

// Check reports whether the channel is still usable.
func (p *RabbitPublisher) Check(context.Context) error {
	if p.ch.IsClosed() {
		return ErrChannelClosed
	}
	return nil
}

// DialRabbitMQ opens a connection and one channel on it.
func DialRabbitMQ(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	return conn, ch, nil
}

var _ ports.MessagePublisher = (*RabbitPublisher)(nil)
