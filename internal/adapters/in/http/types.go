package http

import (
	"time"

	"orders/internal/core/application/usecases/queries"
	"orders/internal/core/domain/model/order"
)

type CreateOrderRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type UpdatedResponse struct {
	Updated bool `json:"updated"`
}

// Order is the JSON form of an order. Money travels as decimal strings.
type Order struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	ProductID  string     `json:"productId"`
	UnitPrice  string     `json:"unitPrice"`
	Quantity   int        `json:"quantity"`
	TotalPrice string     `json:"totalPrice"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func orderFromAggregate(o *order.Order) Order {
	return Order{
		ID:         o.ID().String(),
		UserID:     o.OwnerID(),
		ProductID:  o.ProductID(),
		UnitPrice:  o.UnitPrice().String(),
		Quantity:   o.Quantity(),
		TotalPrice: o.TotalPrice().String(),
		Status:     o.Status().String(),
		CreatedAt:  o.CreatedAt(),
		UpdatedAt:  o.UpdatedAt(),
	}
}

func orderFromResponse(r queries.OrderResponse) Order {
	return Order{
		ID:         r.ID.String(),
		UserID:     r.OwnerID,
		ProductID:  r.ProductID,
		UnitPrice:  r.UnitPrice.String(),
		Quantity:   r.Quantity,
		TotalPrice: r.TotalPrice.String(),
		Status:     r.Status.String(),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func ordersFromResponses(rs []queries.OrderResponse) []Order {
	out := make([]Order, len(rs))
	for i, r := range rs {
		out[i] = orderFromResponse(r)
	}
	return out
}
