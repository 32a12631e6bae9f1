// Package pricing computes order totals and applies coupon discounts.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// minorUnits is the number of decimal places of the currency's minor unit.
const minorUnits = 2

var hundred = decimal.NewFromInt(100)

// Line is a priced quantity of one variant.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the outcome of pricing an order.
type Quote struct {
	Subtotal decimal.Decimal
	// Discount is the amount actually taken off: Subtotal minus Total.
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Evaluate sums the lines and applies c when it is non-nil. The coupon must
// be Active. Only the final total is rounded; it never drops below zero.
func Evaluate(lines []Line, c *coupon.Coupon) (Quote, error) {
	subtotal := Subtotal(lines)

	discount := decimal.Zero
	if c != nil {
		if c.Status != coupon.StatusActive {
			return Quote{}, coupon.ErrInvalidCoupon
		}
		d, err := Discount(subtotal, c)
		if err != nil {
			return Quote{}, err
		}
		discount = d
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(minorUnits)

	return Quote{
		Subtotal: subtotal,
		Discount: subtotal.Sub(total),
		Total:    total,
	}, nil
}

// Subtotal returns the sum of unit price times quantity across all lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Discount returns the unclamped discount c grants on subtotal.
func Discount(subtotal decimal.Decimal, c *coupon.Coupon) (decimal.Decimal, error) {
	switch c.DiscountType {
	case coupon.DiscountPercentage:
		return subtotal.Mul(c.DiscountValue).Div(hundred), nil
	case coupon.DiscountFixed:
		return c.DiscountValue, nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}
