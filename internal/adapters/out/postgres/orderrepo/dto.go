// Package orderrepo maps the order aggregate to the orders table through GORM.
package orderrepo

import (
	"time"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/core/domain/model/order"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderDTO is the row shape of the orders table. Lookups by owner and by product
// are indexed together with created_at for the newest-first listings.
type OrderDTO struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OwnerID    string          `gorm:"type:varchar(128);not null;index:idx_orders_owner_created,priority:1"`
	ProductID  string          `gorm:"type:varchar(128);not null;index:idx_orders_product_created,priority:1"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Quantity   int             `gorm:"not null"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Status     int             `gorm:"type:smallint;not null"`
	CreatedAt  time.Time       `gorm:"autoCreateTime:false;not null;index:idx_orders_owner_created,priority:2,sort:desc;index:idx_orders_product_created,priority:2,sort:desc"`
	UpdatedAt  *time.Time      `gorm:"autoUpdateTime:false"`
}

func (OrderDTO) TableName() string {
	return "orders"
}

func fromDomain(o *order.Order) OrderDTO {
	return OrderDTO{
		ID:         o.ID().Bytes(),
		OwnerID:    o.OwnerID(),
		ProductID:  o.ProductID(),
		UnitPrice:  o.UnitPrice(),
		Quantity:   o.Quantity(),
		TotalPrice: o.TotalPrice(),
		Status:     int(o.Status()),
		CreatedAt:  o.CreatedAt(),
		UpdatedAt:  o.UpdatedAt(),
	}
}

// toDomain rebuilds the aggregate through RestoreOrder so corrupted rows are rejected.
func toDomain(dto OrderDTO) (*order.Order, error) {
	id, err := kernel.UUIDFromBytes(dto.ID[:])
	if err != nil {
		return nil, err
	}

	return order.RestoreOrder(
		id,
		dto.OwnerID,
		dto.ProductID,
		dto.Quantity,
		dto.UnitPrice,
		dto.TotalPrice,
		order.Status(dto.Status),
		dto.CreatedAt,
		dto.UpdatedAt,
	)
}

func toDomainList(dtos []OrderDTO) ([]*order.Order, error) {
	orders := make([]*order.Order, 0, len(dtos))
	for _, dto := range dtos {
		o, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
