package handler

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
)

const maxBodySize = 1 << 20

// badRequestError reports a malformed request body.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decodeObject reads the request body as one JSON object, calling fn for
// every field.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(body) == 0 {
		return badRequest("request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		var bre *badRequestError
		if errors.As(err, &bre) {
			return bre
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {"code","message"} error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// money writes d as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("shippingAddressId")
	e.Str(o.ShippingAddressID)
	e.FieldStart("billingAddressId")
	e.Str(o.BillingAddressID)

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("variantId")
		e.Str(item.VariantID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("priceAtPurchase")
		money(e, item.PriceAtPurchase)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("discount")
	money(e, o.Discount)
	e.FieldStart("totalAmount")
	money(e, o.TotalAmount)
	if o.AppliedCouponID != "" {
		e.FieldStart("appliedCouponId")
		e.Str(o.AppliedCouponID)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("createdAt")
	timestamp(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	timestamp(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	e.FieldStart("discountValue")
	money(e, c.DiscountValue)
	e.FieldStart("status")
	e.Str(string(c.Status))
	if c.ExpiresAt != nil {
		e.FieldStart("expiryDate")
		timestamp(e, *c.ExpiresAt)
	}
	if c.UsageLimit > 0 {
		e.FieldStart("usageLimit")
		e.Int(c.UsageLimit)
	}
	e.FieldStart("timesUsed")
	e.Int(c.TimesUsed)
	e.FieldStart("createdBy")
	e.Str(c.CreatedBy)
	e.FieldStart("createdAt")
	timestamp(e, c.CreatedAt)
	e.ObjEnd()
}

func encodeTicket(e *jx.Encoder, t *ticket.Ticket) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(t.ID)
	e.FieldStart("type")
	e.Str(string(t.Type()))
	e.FieldStart("status")
	e.Str(string(t.Status))
	e.FieldStart("details")
	ticket.EncodeDetails(e, t.Details)
	e.FieldStart("createdById")
	e.Str(t.CreatedByID)
	if t.AssignedToID != "" {
		e.FieldStart("assignedToId")
		e.Str(t.AssignedToID)
	}
	e.FieldStart("createdAt")
	timestamp(e, t.CreatedAt)
	if t.ResolvedAt != nil {
		e.FieldStart("resolvedAt")
		timestamp(e, *t.ResolvedAt)
	}
	e.ObjEnd()
}

func encodeTickets(e *jx.Encoder, tickets []ticket.Ticket) {
	e.ArrStart()
	for i := range tickets {
		encodeTicket(e, &tickets[i])
	}
	e.ArrEnd()
}
