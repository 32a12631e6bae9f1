package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/domain/txn"
)

var hundred = decimal.NewFromInt(100)

// TicketOpener opens approval tickets.
type TicketOpener interface {
	Open(ctx context.Context, createdBy string, d ticket.Details) (*ticket.Ticket, error)
}

// CreateRequest holds a coupon submission.
type CreateRequest struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	ExpiresAt     *time.Time
	UsageLimit    int
	CreatedBy     string
}

// Service is the coupon registry.
type Service struct {
	tx      txn.Transactor
	coupons Repository
	tickets TicketOpener
	now     func() time.Time
}

// NewService creates a coupon registry Service.
func NewService(tx txn.Transactor, coupons Repository, tickets TicketOpener) *Service {
	return &Service{
		tx:      tx,
		coupons: coupons,
		tickets: tickets,
		now:     time.Now,
	}
}

// Create registers a coupon in Pending Approval together with the ticket an
// admin resolves to activate or deny it. Both rows commit or neither does.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, *ticket.Ticket, error) {
	if err := validateRequest(req); err != nil {
		return nil, nil, err
	}

	c := &Coupon{
		ID:            uuid.NewString(),
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		Status:        StatusPendingApproval,
		CreatedBy:     req.CreatedBy,
		ExpiresAt:     req.ExpiresAt,
		UsageLimit:    req.UsageLimit,
		CreatedAt:     s.now().UTC(),
	}

	var t *ticket.Ticket
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.coupons.Create(ctx, c); err != nil {
			return err
		}
		var err error
		t, err = s.tickets.Open(ctx, req.CreatedBy, ticket.CouponApproval{
			CouponID:   c.ID,
			CouponCode: c.Code,
			Message:    fmt.Sprintf("Request to approve coupon: %s", c.Code),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, nil, ErrDuplicateCode
		}
		return nil, nil, errors.Wrap(err, "create coupon")
	}

	zctx.From(ctx).Info("Coupon submitted for approval",
		zap.String("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("ticket_id", t.ID),
	)
	return c, t, nil
}

// FindByCode returns the coupon with the exact code.
func (s *Service) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	return s.coupons.FindByCode(ctx, code)
}

// Get returns the coupon with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	return s.coupons.FindByID(ctx, id)
}

func validateRequest(req CreateRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return errors.Wrap(ErrInvalidDefinition, "code is required")
	}
	if req.CreatedBy == "" {
		return errors.Wrap(ErrInvalidDefinition, "creator is required")
	}
	if req.DiscountValue.IsNegative() {
		return errors.Wrap(ErrInvalidDefinition, "discount value must not be negative")
	}
	if !req.DiscountValue.Equal(req.DiscountValue.Round(2)) {
		return errors.Wrap(ErrInvalidDefinition, "discount value must have at most two decimal places")
	}
	switch req.DiscountType {
	case DiscountPercentage:
		if req.DiscountValue.GreaterThan(hundred) {
			return errors.Wrap(ErrInvalidDefinition, "percentage must not exceed 100")
		}
	case DiscountFixed:
	default:
		return errors.Wrapf(ErrInvalidDefinition, "unsupported discount type %q", req.DiscountType)
	}
	if req.UsageLimit < 0 {
		return errors.Wrap(ErrInvalidDefinition, "usage limit must not be negative")
	}
	return nil
}
