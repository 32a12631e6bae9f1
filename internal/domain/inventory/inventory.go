// Package inventory owns per-variant stock and its atomic check-and-decrement.
package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Variant is a purchasable SKU with its current stock and the unit price
// inherited from its parent product.
type Variant struct {
	ID            string
	ProductID     string
	StockQuantity int
	UnitPrice     decimal.Decimal
}

// InsufficientStockError reports that a variant is missing or cannot cover
// the requested quantity.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Repository provides stock reads and the guarded decrement.
type Repository interface {
	// Lookup returns the variants that exist among ids, in any order.
	Lookup(ctx context.Context, ids []string) ([]Variant, error)
	// Decrement subtracts quantity from the variant's stock only if enough
	// stock remains. It reports false when no row was changed.
	Decrement(ctx context.Context, variantID string, quantity int) (bool, error)
}
