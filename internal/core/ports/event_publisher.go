package ports

import (
	"context"
	"time"

	"orders/internal/core/domain/model/order"
)

// EventPublisher receives the domain events of the order lifecycle.
// Calls for the same order arrive in the order the mutations happened.
type EventPublisher interface {
	PublishCreated(ctx context.Context, o *order.Order) error

	// PublishStatusUpdated is called after o moved from previous to its current status.
	PublishStatusUpdated(ctx context.Context, o *order.Order, previous order.Status, reason string) error
}

// Message is an encoded event ready for a broker. Body holds the JSON envelope,
// Type is the routing key or topic and Key the partitioning key (the order id).
type Message struct {
	ID         string
	Type       string
	Key        string
	OccurredAt time.Time
	Body       []byte
}

// MessagePublisher hands encoded messages to a transport: a broker, an in-memory
// buffer flushed after commit, or the outbox table.
type MessagePublisher interface {
	Publish(ctx context.Context, msg Message) error
}
