package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves coupon codes at checkout and records redemptions.
type Validator interface {
	Validate(ctx context.Context, code string) (*Coupon, error)
	Redeem(ctx context.Context, c *Coupon) error
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon for code and checks that it is active,
// unexpired and below its usage limit.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := c.Usable(v.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// Redeem increments the usage counter. Concurrent checkouts racing for the
// last use see ErrCouponUsageLimitReached.
func (v *RepoValidator) Redeem(ctx context.Context, c *Coupon) error {
	ok, err := v.repo.IncrementUses(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "increment coupon uses")
	}
	if !ok {
		return ErrCouponUsageLimitReached
	}
	c.TimesUsed++
	return nil
}
