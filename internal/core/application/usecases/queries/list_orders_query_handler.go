package queries

import (
	"context"

	"gorm.io/gorm"
)

// ListOrdersQueryHandler serves both list queries; they differ only in the filter column.
//
// Example:
//
//	handler := NewListOrdersQueryHandler(db)
//	query, _ := NewListOrdersByOwnerQuery(userID)
//	orders, err := handler.HandleByOwner(ctx, query)
type ListOrdersQueryHandler struct {
	db *gorm.DB
}

func NewListOrdersQueryHandler(db *gorm.DB) ListOrdersQueryHandler {
	return ListOrdersQueryHandler{db: db}
}

func (h ListOrdersQueryHandler) HandleByOwner(
	ctx context.Context,
	query ListOrdersByOwnerQuery,
) ([]OrderResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.list(ctx, `owner_id = ?`, query.OwnerID())
}

func (h ListOrdersQueryHandler) HandleByProduct(
	ctx context.Context,
	query ListOrdersByProductQuery,
) ([]OrderResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.list(ctx, `product_id = ?`, query.ProductID())
}

func (h ListOrdersQueryHandler) list(ctx context.Context, filter string, value string) ([]OrderResponse, error) {
	rows, err := h.db.WithContext(ctx).
		Raw(selectOrderColumns+` WHERE `+filter+` ORDER BY created_at DESC, id`, value).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}
