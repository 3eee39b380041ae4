package orderrepo

import (
	"context"
	"errors"
	"time"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"
	"orders/internal/core/ports"
	"orders/internal/pkg/errs"

	"gorm.io/gorm"
)

// GormOrderRepository implements ports.OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a repository over db, which may be a transaction.
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Add saves a new order to the database.
func (r *GormOrderRepository) Add(ctx context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	return r.db.WithContext(ctx).Create(&dto).Error
}

// Get retrieves an order by ID.
func (r *GormOrderRepository) Get(ctx context.Context, id kernel.UUID) (*order.Order, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	var dto OrderDTO
	if err := r.db.WithContext(ctx).First(&dto, "id = ?", id.Bytes()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewObjectNotFoundError("order", id.String())
		}
		return nil, err
	}

	return toDomain(dto)
}

// ListByOwner returns the owner's orders, newest first.
func (r *GormOrderRepository) ListByOwner(ctx context.Context, ownerID string) ([]*order.Order, error) {
	var dtos []OrderDTO
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&dtos).Error; err != nil {
		return nil, err
	}

	return toDomainList(dtos)
}

// ListByProduct returns the product's orders, newest first.
func (r *GormOrderRepository) ListByProduct(ctx context.Context, productID string) ([]*order.Order, error) {
	var dtos []OrderDTO
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&dtos).Error; err != nil {
		return nil, err
	}

	return toDomainList(dtos)
}

// CompareAndSetStatus issues a single
//
//	UPDATE orders SET status = $next, updated_at = $at WHERE id = $id AND status = $expected
//
// and reports the affected row count. Concurrent writers on the same row serialize on the
// row lock, and the loser re-evaluates the WHERE clause against the committed status.
func (r *GormOrderRepository) CompareAndSetStatus(
	ctx context.Context,
	id kernel.UUID,
	expected, next order.Status,
	updatedAt time.Time,
) (int64, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}

	result := r.db.WithContext(ctx).
		Model(&OrderDTO{}).
		Where("id = ? AND status = ?", id.Bytes(), int(expected)).
		Updates(map[string]any{
			"status":     int(next),
			"updated_at": updatedAt.UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

// Delete removes the order regardless of its status.
func (r *GormOrderRepository) Delete(ctx context.Context, id kernel.UUID) (int64, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}

	result := r.db.WithContext(ctx).Where("id = ?", id.Bytes()).Delete(&OrderDTO{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

var _ ports.OrderRepository = (*GormOrderRepository)(nil)
