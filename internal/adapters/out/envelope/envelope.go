// Package envelope encodes order domain events into broker messages and back.
//
// Every message body is a JSON envelope:
//
//	{"id": "...", "type": "orders.created", "occurredAt": "...", "data": {...}}
//
// The same encoding is used for direct delivery, for rows in the outbox table and by
// the notification consumer.
package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orders/internal/core/domain/model/order"
	"orders/internal/core/ports"

	"github.com/google/uuid"
)

var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope is the wire shape of every order event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Encode wraps payload into an envelope and returns the message ready for a transport.
func Encode(eventType, key string, occurredAt time.Time, payload any) (ports.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ports.Message{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Data:       data,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return ports.Message{}, fmt.Errorf("encode %s envelope: %w", eventType, err)
	}

	return ports.Message{
		ID:         env.ID,
		Type:       eventType,
		Key:        key,
		OccurredAt: env.OccurredAt,
		Body:       body,
	}, nil
}

// Decode parses an envelope and checks the mandatory fields.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.ID == "" || env.Type == "" || len(env.Data) == 0 {
		return Envelope{}, fmt.Errorf("%w: id, type and data are required", ErrMalformedEnvelope)
	}
	return env, nil
}

// CreatedEvent extracts the payload of an orders.created envelope.
func (e Envelope) CreatedEvent() (order.CreatedEvent, error) {
	var evt order.CreatedEvent
	if e.Type != order.EventOrderCreated {
		return evt, fmt.Errorf("%w: type %q is not %q", ErrMalformedEnvelope, e.Type, order.EventOrderCreated)
	}
	if err := json.Unmarshal(e.Data, &evt); err != nil {
		return evt, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return evt, nil
}

// StatusUpdatedEvent extracts the payload of an orders.status-updated envelope.
func (e Envelope) StatusUpdatedEvent() (order.StatusUpdatedEvent, error) {
	var evt order.StatusUpdatedEvent
	if e.Type != order.EventOrderStatusUpdated {
		return evt, fmt.Errorf("%w: type %q is not %q", ErrMalformedEnvelope, e.Type, order.EventOrderStatusUpdated)
	}
	if err := json.Unmarshal(e.Data, &evt); err != nil {
		return evt, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return evt, nil
}

// Publisher turns domain events into envelopes and hands them to a MessagePublisher.
type Publisher struct {
	sink ports.MessagePublisher
	now  func() time.Time
}

func NewPublisher(sink ports.MessagePublisher) *Publisher {
	return &Publisher{sink: sink, now: time.Now}
}

func (p *Publisher) PublishCreated(ctx context.Context, o *order.Order) error {
	msg, err := Encode(order.EventOrderCreated, o.ID().String(), p.now(), order.NewCreatedEvent(o))
	if err != nil {
		return err
	}
	return p.sink.Publish(ctx, msg)
}

func (p *Publisher) PublishStatusUpdated(ctx context.Context, o *order.Order, previous order.Status, reason string) error {
	msg, err := Encode(order.EventOrderStatusUpdated, o.ID().String(), p.now(),
		order.NewStatusUpdatedEvent(o, previous, reason))
	if err != nil {
		return err
	}
	return p.sink.Publish(ctx, msg)
}

var _ ports.EventPublisher = (*Publisher)(nil)
