package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer order with its priced line items.
type Order struct {
	ID                string
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string
	Items             []Item
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	AppliedCouponID   string
	TotalAmount       decimal.Decimal
	Status            Status
	IdempotencyKey    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item is a single line of an order. PriceAtPurchase is the unit price at
// the time the order was placed and never changes afterwards.
type Item struct {
	VariantID       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order and its items. It returns
	// ErrDuplicateIdempotencyKey when the customer already placed an order
	// with the same idempotency key.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate loads the order and locks it for the rest of the
	// surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from one status to another. It reports
	// false when the order was not in status from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
	FindByIdempotencyKey(ctx context.Context, customerID, key string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
}
