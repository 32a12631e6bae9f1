package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, discount_value, status, created_by,
		expiry_date, usage_limit, times_used, created_at`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	updateCouponStatusSQL = `UPDATE coupons SET status = $2 WHERE id = $1`

	incrementCouponUsesSQL = `UPDATE coupons SET times_used = times_used + 1
		WHERE id = $1 AND (usage_limit = 0 OR times_used < usage_limit)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, string(c.Status), c.CreatedBy,
		c.ExpiresAt, c.UsageLimit, c.TimesUsed, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "coupons_code_key") {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "insert coupon %q", c.Code)
	}
	return nil
}

// FindByCode matches the code exactly; codes are case-sensitive.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) findOne(ctx context.Context, query, arg string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query coupon")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan coupon")
	}
	return &c, nil
}

func (r *CouponRepository) UpdateStatus(ctx context.Context, id string, status coupon.Status) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCouponStatusSQL, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "update coupon %q status", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func (r *CouponRepository) IncrementUses(ctx context.Context, id string) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, incrementCouponUsesSQL, id)
	if err != nil {
		return false, errors.Wrapf(err, "increment coupon %q uses", id)
	}
	return tag.RowsAffected() == 1, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		status       string
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue, &status, &c.CreatedBy,
		&c.ExpiresAt, &c.UsageLimit, &c.TimesUsed, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.Status = coupon.Status(status)
	return c, err
}
