package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type names double as RabbitMQ routing keys and Kafka topics.
const (
	EventOrderCreated       = "orders.created"
	EventOrderStatusUpdated = "orders.status-updated"
)

// CreatedEvent is the payload emitted once per successfully created order.
type CreatedEvent struct {
	OrderID    string          `json:"orderId"`
	OwnerID    string          `json:"userId"`
	ProductID  string          `json:"productId"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// StatusUpdatedEvent is the payload emitted once per successful status change.
// Status is the resulting status; PreviousStatus is what the CAS replaced.
type StatusUpdatedEvent struct {
	OrderID        string    `json:"orderId"`
	OwnerID        string    `json:"userId"`
	PreviousStatus Status    `json:"previousStatus"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:    o.ID().String(),
		OwnerID:    o.OwnerID(),
		ProductID:  o.ProductID(),
		Quantity:   o.Quantity(),
		UnitPrice:  o.UnitPrice(),
		TotalPrice: o.TotalPrice(),
		Status:     o.Status(),
		CreatedAt:  o.CreatedAt(),
	}
}

// NewStatusUpdatedEvent builds the payload for an order that has already moved to its new status.
func NewStatusUpdatedEvent(o *Order, previous Status, reason string) StatusUpdatedEvent {
	evt := StatusUpdatedEvent{
		OrderID:        o.ID().String(),
		OwnerID:        o.OwnerID(),
		PreviousStatus: previous,
		Status:         o.Status(),
		Reason:         reason,
	}
	if at := o.UpdatedAt(); at != nil {
		evt.UpdatedAt = *at
	}
	return evt
}
