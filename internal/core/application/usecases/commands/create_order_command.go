package commands

import (
	"errors"

	"orders/internal/core/domain/model/order"
	"orders/internal/pkg/guard"
)

var ErrCreateOrderCommandIsNotConstructed = errors.New(
	"CreateOrderCommand must be created via NewCreateOrderCommand constructor",
)

// CreateOrderCommand represents a request to place a new order.
// There is no status parameter: every order starts as Pending.
//
// Example:
//
//	cmd, err := NewCreateOrderCommand("user-42", "product-7", 2)
//	if err != nil {
//	    return fmt.Errorf("invalid order data: %w", err)
//	}
//	created, err := lifecycle.Create(ctx, cmd)
type CreateOrderCommand struct { //nolint:recvcheck //using for validation
	ownerID   string
	productID string
	quantity  int

	guard guard.ConstructorGuard
}

// NewCreateOrderCommand validates owner and product ids and the quantity range with the
// aggregate's rules, so every failure is an errs.ErrValueIs* error.
func NewCreateOrderCommand(ownerID, productID string, quantity int) (CreateOrderCommand, error) {
	cmd := CreateOrderCommand{
		guard: guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		cmd.setOwnerID(ownerID),
		cmd.setProductID(productID),
		cmd.setQuantity(quantity),
	); err != nil {
		return CreateOrderCommand{}, err
	}

	return cmd, nil
}

// Validate ensures the command was created through the constructor.
func (c CreateOrderCommand) Validate() error {
	return c.guard.Validate(ErrCreateOrderCommandIsNotConstructed)
}

func (c CreateOrderCommand) OwnerID() string {
	return c.ownerID
}

func (c CreateOrderCommand) ProductID() string {
	return c.productID
}

func (c CreateOrderCommand) Quantity() int {
	return c.quantity
}

func (c *CreateOrderCommand) setOwnerID(ownerID string) error {
	if err := order.ValidateID("ownerID", ownerID); err != nil {
		return err
	}

	c.ownerID = ownerID
	return nil
}

func (c *CreateOrderCommand) setProductID(productID string) error {
	if err := order.ValidateID("productID", productID); err != nil {
		return err
	}

	c.productID = productID
	return nil
}

func (c *CreateOrderCommand) setQuantity(quantity int) error {
	if err := order.ValidateQuantity(quantity); err != nil {
		return err
	}

	c.quantity = quantity
	return nil
}
