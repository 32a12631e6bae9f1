package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
)

// statusOf maps a domain error to its HTTP status. Unknown errors are
// storage or programming failures and map to 500.
func statusOf(err error) int {
	var (
		bre *badRequestError
		iq  *order.InvalidQuantityError
		is  *inventory.InsufficientStockError
		it  *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &bre),
		errors.As(err, &iq),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrMissingReference),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, coupon.ErrInvalidDefinition),
		errors.Is(err, ticket.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, ticket.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, ticket.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.As(err, &is),
		errors.As(err, &it),
		errors.Is(err, coupon.ErrDuplicateCode),
		errors.Is(err, ticket.ErrAlreadyResolved),
		errors.Is(err, ticket.ErrTypeMismatch),
		errors.Is(err, ticket.ErrAlreadyOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an error envelope. Internal errors are logged and
// replaced with a generic message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}
