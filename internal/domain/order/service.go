package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/domain/txn"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems              = errors.New("items required")
	ErrMissingReference        = errors.New("customer and address references are required")
	ErrUnknownStatus           = errors.New("unknown order status")
	ErrNotFound                = errors.New("order not found")
	ErrForbidden               = errors.New("order belongs to another customer")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// MaxLineQuantity is the largest quantity a single line item may request.
const MaxLineQuantity = math.MaxInt32

// InvalidQuantityError indicates a line item quantity outside
// [1, MaxLineQuantity].
type InvalidQuantityError struct {
	VariantID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for variant %s", MaxLineQuantity, e.VariantID)
}

// StockLedger checks and reserves variant stock.
type StockLedger interface {
	Check(ctx context.Context, reqs []inventory.Request) ([]inventory.Variant, error)
	Reserve(ctx context.Context, variantID string, quantity int) error
}

// TicketOpener opens approval tickets.
type TicketOpener interface {
	Open(ctx context.Context, createdBy string, d ticket.Details) (*ticket.Ticket, error)
}

// LineRequest is one requested line of a new order.
type LineRequest struct {
	VariantID string
	Quantity  int
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string
	Items             []LineRequest
	CouponCode        string
	// IdempotencyKey makes retries of the same request return the order
	// created by the first attempt.
	IdempotencyKey string
}

// Service owns order creation and the order status state machine.
type Service struct {
	tx      txn.Transactor
	orders  Repository
	stock   StockLedger
	coupons coupon.Validator
	tickets TicketOpener
	now     func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx txn.Transactor,
	orders Repository,
	stock StockLedger,
	coupons coupon.Validator,
	tickets TicketOpener,
) *Service {
	return &Service{
		tx:      tx,
		orders:  orders,
		stock:   stock,
		coupons: coupons,
		tickets: tickets,
		now:     time.Now,
	}
}

// Create validates stock, prices the order, and persists it with its items
// and stock decrements in one transaction. Any failure leaves inventory,
// orders and coupons untouched.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "check idempotency key")
		}
	}

	reqs := make([]inventory.Request, len(req.Items))
	for i, item := range req.Items {
		reqs[i] = inventory.Request{VariantID: item.VariantID, Quantity: item.Quantity}
	}

	var created *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		variants, err := s.stock.Check(ctx, reqs)
		if err != nil {
			return err
		}

		var c *coupon.Coupon
		if req.CouponCode != "" {
			c, err = s.coupons.Validate(ctx, req.CouponCode)
			if err != nil {
				return err
			}
		}

		lines := make([]pricing.Line, len(variants))
		items := make([]Item, len(variants))
		for i, v := range variants {
			lines[i] = pricing.Line{UnitPrice: v.UnitPrice, Quantity: req.Items[i].Quantity}
			items[i] = Item{
				VariantID:       v.ID,
				Quantity:        req.Items[i].Quantity,
				PriceAtPurchase: v.UnitPrice,
			}
		}

		quote, err := pricing.Evaluate(lines, c)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		o := &Order{
			ID:                uuid.NewString(),
			CustomerID:        req.CustomerID,
			ShippingAddressID: req.ShippingAddressID,
			BillingAddressID:  req.BillingAddressID,
			Items:             items,
			Subtotal:          quote.Subtotal,
			Discount:          quote.Discount,
			TotalAmount:       quote.Total,
			Status:            StatusProcessing,
			IdempotencyKey:    req.IdempotencyKey,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if c != nil {
			o.AppliedCouponID = c.ID
		}

		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		for _, item := range o.Items {
			if err := s.stock.Reserve(ctx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		if c != nil {
			if err := s.coupons.Redeem(ctx, c); err != nil {
				return err
			}
		}

		created = o
		return nil
	})
	if err != nil {
		// A concurrent retry with the same key won the insert.
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return s.orders.FindByIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
		}
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", created.ID),
		zap.String("customer_id", created.CustomerID),
		zap.Int("items", len(created.Items)),
		zap.String("total", created.TotalAmount.StringFixed(2)),
	)
	return created, nil
}

func validateCreate(req CreateRequest) error {
	if req.CustomerID == "" || req.ShippingAddressID == "" || req.BillingAddressID == "" {
		return ErrMissingReference
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity < 1 || item.Quantity > MaxLineQuantity {
			return &InvalidQuantityError{VariantID: item.VariantID}
		}
	}
	return nil
}

// UpdateStatus moves an order along the manager-driven part of the state
// machine.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	if !to.Settable() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", to)
	}
	return s.transition(ctx, id, func(o *Order) error {
		if !CanTransition(o.Status, to) {
			return &InvalidTransitionError{From: o.Status, To: to}
		}
		return nil
	}, to)
}

// RequestReturn lets the owning customer return a delivered order.
func (s *Service) RequestReturn(ctx context.Context, customerID, id string) (*Order, error) {
	return s.transition(ctx, id, func(o *Order) error {
		if o.CustomerID != customerID {
			return ErrForbidden
		}
		if o.Status != StatusDelivered {
			return &InvalidTransitionError{From: o.Status, To: StatusReturned}
		}
		return nil
	}, StatusReturned)
}

// transition locks the order, runs check, and moves it to status to.
func (s *Service) transition(ctx context.Context, id string, check func(o *Order) error, to Status) (*Order, error) {
	var updated *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := check(o); err != nil {
			return err
		}

		now := s.now().UTC()
		ok, err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to, now)
		if err != nil {
			return errors.Wrap(err, "update order status")
		}
		if !ok {
			return &InvalidTransitionError{From: o.Status, To: to}
		}
		from := o.Status
		o.Status = to
		o.UpdatedAt = now
		updated = o

		zctx.From(ctx).Info("Order status changed",
			zap.String("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RaiseRefundTicket opens a refund request for a returned order. The order
// itself is not changed; the ticket snapshots its amount.
func (s *Service) RaiseRefundTicket(ctx context.Context, raisedBy, id string) (*ticket.Ticket, error) {
	var t *ticket.Ticket
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusReturned {
			return &InvalidTransitionError{From: o.Status, To: StatusRefunded}
		}

		t, err = s.tickets.Open(ctx, raisedBy, ticket.RefundRequest{
			OrderID:     o.ID,
			CustomerID:  o.CustomerID,
			TotalAmount: o.TotalAmount,
			Message:     fmt.Sprintf("Refund requested for returned order %s", o.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// History returns the customer's orders, newest first.
func (s *Service) History(ctx context.Context, customerID string) ([]Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list customer orders")
	}
	return orders, nil
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
