// Package pricing quotes unit prices for new orders.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"orders/internal/core/ports"
	"orders/internal/pkg/errs"

	"github.com/shopspring/decimal"
)

var ErrUnexpectedStatus = errors.New("product service returned unexpected status")

// Zero prices every product at 0.
type Zero struct{}

func (Zero) UnitPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type productResponse struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

// ProductClient reads the current price from the product service at GET {base}/api/products/{id}.
type ProductClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewProductClient(baseURL string, timeout time.Duration) *ProductClient {
	return &ProductClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *ProductClient) UnitPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/api/products/" + url.PathEscape(productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call product service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, errs.NewObjectNotFoundError("product", productID)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var product productResponse
	if err = json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return decimal.Zero, fmt.Errorf("decode product %s: %w", productID, err)
	}
	if product.Price.IsNegative() {
		return decimal.Zero, errs.NewValueIsInvalidError("price")
	}

	return product.Price, nil
}

var (
	_ ports.PriceQuoter = Zero{}
	_ ports.PriceQuoter = (*ProductClient)(nil)
)
