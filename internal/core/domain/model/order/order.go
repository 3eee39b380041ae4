package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"orders/internal/core/domain/model/kernel"
	"orders/internal/pkg/errs"
	"orders/internal/pkg/guard"

	"github.com/shopspring/decimal"
)

// Bounds shared with the orders table: ids are varchar(128) and prices numeric(18,4).
const (
	MaxIDLength = 128
	MaxQuantity = 10_000
	PriceScale  = 4
)

// maxPrice is the exclusive upper bound of a numeric(18,4) column.
var maxPrice = decimal.New(1, 18-PriceScale)

var (
	// ErrOrderIsNotConstructed is returned when an Order instance was not created through
	// NewOrder or RestoreOrder.
	ErrOrderIsNotConstructed = errors.New("Order must be created via NewOrder constructor")
)

// Order is the aggregate root of the order lifecycle.
//
// Order follows these invariants:
//   - Must have a valid unique identifier, assigned once and never changed
//   - OwnerID and ProductID are non-empty
//   - Quantity is in [1, MaxQuantity] and UnitPrice is non-negative
//   - Prices carry at most PriceScale decimal places
//   - TotalPrice always equals UnitPrice * Quantity
//   - Status only moves along the edges of the transition table
//
// Fields are private; the aggregate is mutated only through ChangeStatus.
type Order struct {
	id         kernel.UUID
	ownerID    string
	productID  string
	unitPrice  decimal.Decimal
	quantity   int
	totalPrice decimal.Decimal
	status     Status
	createdAt  time.Time

	// updatedAt stays nil until the first status change.
	updatedAt *time.Time

	guard guard.ConstructorGuard
}

// NewOrder creates a Pending order. The total price is derived from unitPrice and quantity;
// callers never supply it.
//
// Example:
//
//	o, err := order.NewOrder(kernel.NewUUID(), "user-1", "product-7", 3, decimal.RequireFromString("9.99"), time.Now())
//	if err != nil {
//	    // Handle validation error
//	}
func NewOrder(
	id kernel.UUID,
	ownerID, productID string,
	quantity int,
	unitPrice decimal.Decimal,
	createdAt time.Time,
) (*Order, error) {
	o := &Order{
		status: Pending,
		guard:  guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		o.setID(id),
		o.setOwnerID(ownerID),
		o.setProductID(productID),
		o.setQuantity(quantity),
		o.setUnitPrice(unitPrice),
		o.setCreatedAt(createdAt),
	); err != nil {
		return nil, err
	}

	total := o.unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if total.GreaterThanOrEqual(maxPrice) {
		return nil, errs.NewValueIsOutOfRangeError("total price", total.String(), 0, maxPrice.String())
	}
	o.totalPrice = total
	return o, nil
}

// RestoreOrder rebuilds an order from storage. It re-checks the same invariants as NewOrder
// and rejects rows whose total does not match unit price times quantity.
func RestoreOrder(
	id kernel.UUID,
	ownerID, productID string,
	quantity int,
	unitPrice, totalPrice decimal.Decimal,
	status Status,
	createdAt time.Time,
	updatedAt *time.Time,
) (*Order, error) {
	o := &Order{guard: guard.NewConstructorGuard()}

	if err := errors.Join(
		o.setID(id),
		o.setOwnerID(ownerID),
		o.setProductID(productID),
		o.setQuantity(quantity),
		o.setUnitPrice(unitPrice),
		o.setCreatedAt(createdAt),
		status.Validate(),
	); err != nil {
		return nil, err
	}

	expected := o.unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if !expected.Equal(totalPrice) {
		return nil, errs.NewValueIsInvalidErrorWithCause(
			"total price is invalid",
			fmt.Errorf("%s is not %s * %d", totalPrice, o.unitPrice, quantity),
		)
	}

	o.totalPrice = totalPrice
	o.status = status
	if updatedAt != nil {
		at := *updatedAt
		o.updatedAt = &at
	}
	return o, nil
}

// Validate reports ErrOrderIsNotConstructed for orders that bypassed the constructors.
func (o *Order) Validate() error {
	if o == nil {
		return ErrOrderIsNotConstructed
	}
	return o.guard.Validate(ErrOrderIsNotConstructed)
}

// IsEqual compares two orders by identifier.
func (o *Order) IsEqual(other *Order) bool {
	return other != nil && o.id.IsEqual(other.id)
}

func (o *Order) ID() kernel.UUID {
	return o.id
}

func (o *Order) OwnerID() string {
	return o.ownerID
}

func (o *Order) ProductID() string {
	return o.productID
}

func (o *Order) UnitPrice() decimal.Decimal {
	return o.unitPrice
}

func (o *Order) Quantity() int {
	return o.quantity
}

func (o *Order) TotalPrice() decimal.Decimal {
	return o.totalPrice
}

func (o *Order) Status() Status {
	return o.status
}

func (o *Order) CreatedAt() time.Time {
	return o.createdAt
}

// UpdatedAt returns a copy of the last status change time, or nil if the status never changed.
func (o *Order) UpdatedAt() *time.Time {
	if o.updatedAt == nil {
		return nil
	}
	at := *o.updatedAt
	return &at
}

// IsOwnedBy reports whether userID placed the order.
func (o *Order) IsOwnedBy(userID string) bool {
	return userID != "" && o.ownerID == userID
}

// ChangeStatus moves the order to next if the transition table allows it and stamps
// updatedAt with at. On rejection the order is left untouched and an
// *InvalidTransitionError is returned.
func (o *Order) ChangeStatus(next Status, at time.Time) error {
	if err := next.Validate(); err != nil {
		return err
	}

	newStatus, err := o.status.TransitionTo(next)
	if err != nil {
		return err
	}

	o.status = newStatus
	stamp := at.UTC()
	o.updatedAt = &stamp
	return nil
}

func (o *Order) setID(id kernel.UUID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	o.id = id
	return nil
}

func (o *Order) setOwnerID(ownerID string) error {
	if err := ValidateID("ownerID", ownerID); err != nil {
		return err
	}
	o.ownerID = ownerID
	return nil
}

func (o *Order) setProductID(productID string) error {
	if err := ValidateID("productID", productID); err != nil {
		return err
	}
	o.productID = productID
	return nil
}

func (o *Order) setQuantity(quantity int) error {
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}
	o.quantity = quantity
	return nil
}

// setUnitPrice rounds half away from zero to PriceScale places, the way the column stores it.
func (o *Order) setUnitPrice(unitPrice decimal.Decimal) error {
	if unitPrice.IsNegative() {
		return errs.NewValueIsInvalidErrorWithCause("unit price is invalid", fmt.Errorf("%s is negative", unitPrice))
	}
	rounded := unitPrice.Round(PriceScale)
	if rounded.GreaterThanOrEqual(maxPrice) {
		return errs.NewValueIsOutOfRangeError("unit price", rounded.String(), 0, maxPrice.String())
	}
	o.unitPrice = rounded
	return nil
}

// ValidateID checks an owner or product id: non-blank and at most MaxIDLength characters.
func ValidateID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.NewValueIsRequiredError(name)
	}
	if n := utf8.RuneCountInString(id); n > MaxIDLength {
		return errs.NewValueIsOutOfRangeError(name+" length", n, 1, MaxIDLength)
	}
	return nil
}

func ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxQuantity {
		return errs.NewValueIsOutOfRangeError("quantity", quantity, 1, MaxQuantity)
	}
	return nil
}

func (o *Order) setCreatedAt(createdAt time.Time) error {
	if createdAt.IsZero() {
		return errs.NewValueIsRequiredError("createdAt")
	}
	o.createdAt = createdAt.UTC()
	return nil
}
