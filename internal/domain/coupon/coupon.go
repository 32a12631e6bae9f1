package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Status is the approval state of a coupon.
type Status string

const (
	StatusPendingApproval Status = "Pending Approval"
	StatusActive          Status = "Active"
	StatusDenied          Status = "Denied"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or the coupon
	// cannot currently be applied.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is past its expiry date.
	ErrCouponExpired = errors.Wrap(ErrInvalidCoupon, "coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.Wrap(ErrInvalidCoupon, "coupon usage limit reached")
	// ErrDuplicateCode is returned when creating a coupon whose code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrNotFound is returned when no coupon has the requested id or code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInvalidDefinition is returned for malformed coupon submissions.
	ErrInvalidDefinition = errors.New("invalid coupon definition")
)

// Coupon is a promotional discount with its own approval lifecycle.
type Coupon struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Status        Status
	CreatedBy     string
	// ExpiresAt is optional; nil means the coupon never expires.
	ExpiresAt *time.Time
	// UsageLimit caps redemptions; zero means unlimited.
	UsageLimit int
	TimesUsed  int
	CreatedAt  time.Time
}

// Usable reports why the coupon cannot be redeemed at now, or nil if it can.
func (c *Coupon) Usable(now time.Time) error {
	if c.Status != StatusActive {
		return ErrInvalidCoupon
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ErrCouponExpired
	}
	if c.UsageLimit > 0 && c.TimesUsed >= c.UsageLimit {
		return ErrCouponUsageLimitReached
	}
	return nil
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// Create inserts a coupon, returning ErrDuplicateCode if the code is taken.
	Create(ctx context.Context, c *Coupon) error
	// FindByCode looks up a coupon by its exact, case-sensitive code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id string) (*Coupon, error)
	// UpdateStatus returns ErrNotFound when the coupon does not exist.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// IncrementUses bumps the usage counter unless the usage limit is
	// already reached. It reports false when nothing was updated.
	IncrementUses(ctx context.Context, id string) (bool, error)
}
