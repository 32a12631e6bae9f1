package ticket

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeDetails writes d as a JSON object.
func EncodeDetails(e *jx.Encoder, d Details) {
	e.ObjStart()
	switch d := d.(type) {
	case CouponApproval:
		e.FieldStart("couponId")
		e.Str(d.CouponID)
		e.FieldStart("couponCode")
		e.Str(d.CouponCode)
		writeMessage(e, d.Message)
	case RefundRequest:
		e.FieldStart("orderId")
		e.Str(d.OrderID)
		e.FieldStart("customerId")
		e.Str(d.CustomerID)
		// Money travels as a string to keep exact decimal precision.
		e.FieldStart("totalAmount")
		e.Str(d.TotalAmount.StringFixed(2))
		writeMessage(e, d.Message)
	}
	e.ObjEnd()
}

func writeMessage(e *jx.Encoder, msg string) {
	if msg == "" {
		return
	}
	e.FieldStart("message")
	e.Str(msg)
}

// MarshalDetails encodes d for storage.
func MarshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, errors.New("nil details")
	}
	var e jx.Encoder
	EncodeDetails(&e, d)
	return e.Bytes(), nil
}

// UnmarshalDetails decodes a payload stored for a ticket of type typ.
func UnmarshalDetails(typ Type, data []byte) (Details, error) {
	d := jx.DecodeBytes(data)
	switch typ {
	case TypeCouponApproval:
		var out CouponApproval
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "couponId":
				out.CouponID, err = d.Str()
			case "couponCode":
				out.CouponCode, err = d.Str()
			case "message":
				out.Message, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return nil, errors.Wrap(err, "decode coupon approval details")
		}
		if out.CouponID == "" {
			return nil, errors.New("coupon approval details: missing couponId")
		}
		return out, nil
	case TypeRefundRequest:
		var out RefundRequest
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "orderId":
				out.OrderID, err = d.Str()
			case "customerId":
				out.CustomerID, err = d.Str()
			case "totalAmount":
				out.TotalAmount, err = DecodeAmount(d)
			case "message":
				out.Message, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return nil, errors.Wrap(err, "decode refund request details")
		}
		if out.OrderID == "" {
			return nil, errors.New("refund request details: missing orderId")
		}
		return out, nil
	default:
		return nil, errors.Errorf("unknown ticket type %q", typ)
	}
}

// DecodeAmount reads a money value given either as a JSON string or number.
func DecodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for amount", d.Next())
	}
}
