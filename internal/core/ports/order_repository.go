// Package ports defines the contracts between the order core and its infrastructure:
// storage, event publication, pricing and request deduplication.
package ports

import (
	"context"
	"time"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"
)

// OrderRepository defines the persistence contract for order aggregates.
type OrderRepository interface {
	// Add persists a new order aggregate.
	// The order must be valid and not already exist in the repository.
	Add(ctx context.Context, aggregate *order.Order) error

	// Get retrieves an order by identifier.
	// A missing row yields *errs.ObjectNotFoundError.
	Get(ctx context.Context, id kernel.UUID) (*order.Order, error)

	// ListByOwner returns the orders placed by ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*order.Order, error)

	// ListByProduct returns the orders for productID, newest first.
	ListByProduct(ctx context.Context, productID string) ([]*order.Order, error)

	// CompareAndSetStatus writes next and updatedAt only if the stored status still equals
	// expected, as a single conditional statement. It returns the number of affected rows.
	//
	// Example:
	//   n, err := repo.CompareAndSetStatus(ctx, id, order.Pending, order.Shipping, now)
	//   if err == nil && n == 0 {
	//       // another writer changed or deleted the order first
	//   }
	CompareAndSetStatus(ctx context.Context, id kernel.UUID, expected, next order.Status, updatedAt time.Time) (int64, error)

	// Delete removes the order regardless of status and returns the number of affected rows.
	Delete(ctx context.Context, id kernel.UUID) (int64, error)
}
