// Package queries contains read-only use cases. Handlers read straight from the
// database with raw SQL and return flat response models instead of aggregates.
package queries

import (
	"database/sql"
	"time"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderResponse is the read model of one order.
type OrderResponse struct {
	ID         kernel.UUID
	OwnerID    string
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Status     order.Status
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

const selectOrderColumns = `
	SELECT
		id,
		owner_id,
		product_id,
		quantity,
		unit_price,
		total_price,
		status,
		created_at,
		updated_at
	FROM orders`

func scanOrders(rows *sql.Rows) ([]OrderResponse, error) {
	orders := make([]OrderResponse, 0)

	for rows.Next() {
		var (
			resp   OrderResponse
			id     uuid.UUID
			status int
		)

		err := rows.Scan(
			&id,
			&resp.OwnerID,
			&resp.ProductID,
			&resp.Quantity,
			&resp.UnitPrice,
			&resp.TotalPrice,
			&status,
			&resp.CreatedAt,
			&resp.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		orderID, idErr := kernel.UUIDFromBytes(id[:])
		if idErr != nil {
			return nil, idErr
		}
		resp.ID = orderID

		resp.Status = order.Status(status)
		if err = resp.Status.Validate(); err != nil {
			return nil, err
		}

		resp.CreatedAt = resp.CreatedAt.UTC()
		if resp.UpdatedAt != nil {
			updated := resp.UpdatedAt.UTC()
			resp.UpdatedAt = &updated
		}

		orders = append(orders, resp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
