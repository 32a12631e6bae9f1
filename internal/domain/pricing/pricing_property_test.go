//go:build property

package pricing

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

func TestProperty_TotalNeverNegative(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(params)

	properties.Property("fixed discount above subtotal yields zero", prop.ForAll(
		func(cents int64, qty int, extra int64) bool {
			lines := []Line{{UnitPrice: decimal.New(cents, -2), Quantity: qty}}
			subtotal := Subtotal(lines)
			c := &coupon.Coupon{
				DiscountType:  coupon.DiscountFixed,
				DiscountValue: subtotal.Add(decimal.New(extra, -2)),
				Status:        coupon.StatusActive,
			}
			q, err := Evaluate(lines, c)
			return err == nil && q.Total.IsZero()
		},
		gen.Int64Range(0, 1_000_000),
		gen.IntRange(1, 50),
		gen.Int64Range(1, 1_000_000),
	))

	properties.Property("total stays within [0, subtotal]", prop.ForAll(
		func(cents int64, qty int, pct int64) bool {
			lines := []Line{{UnitPrice: decimal.New(cents, -2), Quantity: qty}}
			c := &coupon.Coupon{
				DiscountType:  coupon.DiscountPercentage,
				DiscountValue: decimal.NewFromInt(pct),
				Status:        coupon.StatusActive,
			}
			q, err := Evaluate(lines, c)
			if err != nil {
				return false
			}
			return !q.Total.IsNegative() && q.Total.LessThanOrEqual(q.Subtotal.Round(minorUnits))
		},
		gen.Int64Range(0, 1_000_000),
		gen.IntRange(1, 50),
		gen.Int64Range(0, 100),
	))

	properties.TestingRun(t)
}
