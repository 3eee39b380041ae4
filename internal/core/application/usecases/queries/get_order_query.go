package queries

import (
	"errors"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/pkg/errs"
	"orders/internal/pkg/guard"
)

var ErrGetOrderQueryIsNotConstructed = errors.New(
	"GetOrderQuery must be created via NewGetOrderQuery constructor",
)

// GetOrderQuery fetches one order by id.
//
// Example:
//
//	query, err := NewGetOrderQuery(c.Param("id"))
//	if err != nil {
//	    return err // 400
//	}
//	resp, err := handler.Handle(ctx, query)
type GetOrderQuery struct {
	orderID kernel.UUID
	guard   guard.ConstructorGuard
}

func NewGetOrderQuery(orderID string) (GetOrderQuery, error) {
	id, err := kernel.UUIDFromString(orderID)
	if err != nil {
		return GetOrderQuery{}, errs.NewValueIsInvalidErrorWithCause("orderID", err)
	}

	return GetOrderQuery{orderID: id, guard: guard.NewConstructorGuard()}, nil
}

func (q GetOrderQuery) OrderID() kernel.UUID {
	return q.orderID
}

func (q GetOrderQuery) Validate() error {
	return q.guard.Validate(ErrGetOrderQueryIsNotConstructed)
}
