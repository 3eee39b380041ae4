package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceQuoter resolves the unit price of a product at order creation time.
type PriceQuoter interface {
	UnitPrice(ctx context.Context, productID string) (decimal.Decimal, error)
}
