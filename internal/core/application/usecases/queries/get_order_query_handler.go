package queries

import (
	"context"

	"orders/internal/pkg/errs"

	"gorm.io/gorm"
)

type GetOrderQueryHandler struct {
	db *gorm.DB
}

func NewGetOrderQueryHandler(db *gorm.DB) GetOrderQueryHandler {
	return GetOrderQueryHandler{db: db}
}

// Handle returns *errs.ObjectNotFoundError when the id is unknown.
func (h GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (OrderResponse, error) {
	if err := query.Validate(); err != nil {
		return OrderResponse{}, err
	}

	rows, err := h.db.WithContext(ctx).
		Raw(selectOrderColumns+` WHERE id = ?`, query.OrderID().String()).
		Rows()
	if err != nil {
		return OrderResponse{}, err
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return OrderResponse{}, err
	}
	if len(orders) == 0 {
		return OrderResponse{}, errs.NewObjectNotFoundError("order", query.OrderID().String())
	}

	return orders[0], nil
}
