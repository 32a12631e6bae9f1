package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/ticket"
)

// CreateCoupon submits a coupon for approval. The response carries both the
// pending coupon and its approval ticket.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	req := coupon.CreateRequest{CreatedBy: actor.ID}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "discountType":
			var s string
			s, err = d.Str()
			req.DiscountType = coupon.DiscountType(s)
		case "discountValue":
			req.DiscountValue, err = ticket.DecodeAmount(d)
			if err != nil {
				return badRequest("discountValue: %v", err)
			}
		case "expiryDate":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			t, perr := time.Parse(time.RFC3339, s)
			if perr != nil {
				return badRequest("expiryDate must be RFC 3339: %v", perr)
			}
			req.ExpiresAt = &t
		case "usageLimit":
			req.UsageLimit, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	c, t, err := h.coupons.Create(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("coupon")
		encodeCoupon(e, c)
		e.FieldStart("ticket")
		encodeTicket(e, t)
		e.ObjEnd()
	})
}
