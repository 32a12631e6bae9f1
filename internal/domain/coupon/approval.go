package coupon

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/ticket"
)

var _ ticket.Handler = (*ApprovalHandler)(nil)

// ApprovalHandler flips a coupon's status when its approval ticket is resolved.
type ApprovalHandler struct {
	coupons Repository
}

// NewApprovalHandler creates an ApprovalHandler.
func NewApprovalHandler(coupons Repository) *ApprovalHandler {
	return &ApprovalHandler{coupons: coupons}
}

// Apply activates the coupon on approval and marks it denied otherwise.
func (h *ApprovalHandler) Apply(ctx context.Context, t *ticket.Ticket, action ticket.Action) error {
	d, ok := t.Details.(ticket.CouponApproval)
	if !ok {
		return ticket.ErrTypeMismatch
	}

	status := StatusDenied
	if action == ticket.ActionApproved {
		status = StatusActive
	}

	if err := h.coupons.UpdateStatus(ctx, d.CouponID, status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ticket.ErrSubjectNotFound
		}
		return errors.Wrapf(err, "set coupon %q status", d.CouponID)
	}
	return nil
}
