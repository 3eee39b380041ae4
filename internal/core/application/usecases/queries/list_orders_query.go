package queries

import (
	"errors"
	"strings"

	"orders/internal/pkg/errs"
	"orders/internal/pkg/guard"
)

var (
	ErrListOrdersByOwnerQueryIsNotConstructed = errors.New(
		"ListOrdersByOwnerQuery must be created via NewListOrdersByOwnerQuery constructor",
	)
	ErrListOrdersByProductQueryIsNotConstructed = errors.New(
		"ListOrdersByProductQuery must be created via NewListOrdersByProductQuery constructor",
	)
)

// ListOrdersByOwnerQuery lists the orders placed by one user, newest first.
type ListOrdersByOwnerQuery struct {
	ownerID string
	guard   guard.ConstructorGuard
}

func NewListOrdersByOwnerQuery(ownerID string) (ListOrdersByOwnerQuery, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ListOrdersByOwnerQuery{}, errs.NewValueIsRequiredError("ownerID")
	}
	return ListOrdersByOwnerQuery{ownerID: ownerID, guard: guard.NewConstructorGuard()}, nil
}

func (q ListOrdersByOwnerQuery) OwnerID() string { return q.ownerID }

func (q ListOrdersByOwnerQuery) Validate() error {
	return q.guard.Validate(ErrListOrdersByOwnerQueryIsNotConstructed)
}

// ListOrdersByProductQuery lists every order of one product, newest first.
type ListOrdersByProductQuery struct {
	productID string
	guard     guard.ConstructorGuard
}

func NewListOrdersByProductQuery(productID string) (ListOrdersByProductQuery, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ListOrdersByProductQuery{}, errs.NewValueIsRequiredError("productID")
	}
	return ListOrdersByProductQuery{productID: productID, guard: guard.NewConstructorGuard()}, nil
}

func (q ListOrdersByProductQuery) ProductID() string { return q.productID }

func (q ListOrdersByProductQuery) Validate() error {
	return q.guard.Validate(ErrListOrdersByProductQueryIsNotConstructed)
}
