package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/ticket"
)

var _ ticket.Handler = (*RefundHandler)(nil)

// RefundHandler marks an order refunded when its refund ticket is approved.
type RefundHandler struct {
	orders Repository
	now    func() time.Time
}

// NewRefundHandler creates a RefundHandler.
func NewRefundHandler(orders Repository) *RefundHandler {
	return &RefundHandler{orders: orders, now: time.Now}
}

// Apply re-checks that the order is still Returned before refunding it, since
// its status may have changed after the ticket was raised. A denial leaves
// the order as it is.
func (h *RefundHandler) Apply(ctx context.Context, t *ticket.Ticket, action ticket.Action) error {
	d, ok := t.Details.(ticket.RefundRequest)
	if !ok {
		return ticket.ErrTypeMismatch
	}
	if action != ticket.ActionApproved {
		return nil
	}

	o, err := h.orders.GetForUpdate(ctx, d.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ticket.ErrSubjectNotFound
		}
		return errors.Wrapf(err, "load order %q", d.OrderID)
	}
	if o.Status != StatusReturned {
		return &InvalidTransitionError{From: o.Status, To: StatusRefunded}
	}

	ok, err = h.orders.UpdateStatus(ctx, o.ID, StatusReturned, StatusRefunded, h.now().UTC())
	if err != nil {
		return errors.Wrapf(err, "refund order %q", o.ID)
	}
	if !ok {
		return &InvalidTransitionError{From: o.Status, To: StatusRefunded}
	}
	return nil
}
