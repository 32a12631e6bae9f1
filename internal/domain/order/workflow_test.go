package order_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/storage/memory"
)

type fixture struct {
	store   *memory.Store
	orders  *order.Service
	coupons *coupon.Service
	tickets *ticket.Service
}

func newFixture(t *testing.T, variants ...inventory.Variant) *fixture {
	t.Helper()

	store := memory.New()
	for _, v := range variants {
		store.Variants().Put(context.Background(), v)
	}

	tickets := ticket.NewService(store, store.Tickets())
	tickets.Register(ticket.TypeCouponApproval, coupon.NewApprovalHandler(store.Coupons()))
	tickets.Register(ticket.TypeRefundRequest, order.NewRefundHandler(store.Orders()))

	return &fixture{
		store:   store,
		tickets: tickets,
		coupons: coupon.NewService(store, store.Coupons(), tickets),
		orders: order.NewService(
			store,
			store.Orders(),
			inventory.NewLedger(store.Variants()),
			coupon.NewRepoValidator(store.Coupons()),
			tickets,
		),
	}
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	vs, err := f.store.Variants().Lookup(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	return vs[0].StockQuantity
}

func variant(id string, stock int, price string) inventory.Variant {
	return inventory.Variant{ID: id, ProductID: "p-" + id, StockQuantity: stock, UnitPrice: decimal.RequireFromString(price)}
}

func orderFor(customer string, items ...order.LineRequest) order.CreateRequest {
	return order.CreateRequest{
		CustomerID:        customer,
		ShippingAddressID: "ship-" + customer,
		BillingAddressID:  "bill-" + customer,
		Items:             items,
	}
}

func TestCreateOrder_FailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 5, "10.00"), variant("b", 1, "4.00"))

	_, err := f.orders.Create(ctx, orderFor("cust",
		order.LineRequest{VariantID: "a", Quantity: 2},
		order.LineRequest{VariantID: "b", Quantity: 3},
	))

	var isErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "b", isErr.VariantID)
	assert.Equal(t, 3, isErr.Requested)
	assert.Equal(t, 1, isErr.Available)

	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 1, f.stock(t, "b"))
	orders, err := f.orders.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_DuplicateVariantLinesShareStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 3, "1.00"))

	_, err := f.orders.Create(ctx, orderFor("cust",
		order.LineRequest{VariantID: "a", Quantity: 2},
		order.LineRequest{VariantID: "a", Quantity: 2},
	))
	var isErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, 3, f.stock(t, "a"))
}

func TestCreateOrder_ConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	const (
		stock   = 5
		buyers  = 20
		perUnit = "3.00"
	)
	f := newFixture(t, variant("hot", stock, perUnit))

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.Create(ctx, orderFor("cust", order.LineRequest{VariantID: "hot", Quantity: 1}))
			if err == nil {
				succeeded.Add(1)
				return
			}
			var isErr *inventory.InsufficientStockError
			assert.ErrorAs(t, err, &isErr)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(stock), succeeded.Load())
	assert.Equal(t, 0, f.stock(t, "hot"))
}

func TestCouponLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "50.00"))

	c, tk, err := f.coupons.Create(ctx, coupon.CreateRequest{
		Code:          "SAVE10",
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		CreatedBy:     "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusPendingApproval, c.Status)
	assert.Equal(t, ticket.StatusOpen, tk.Status)

	req := orderFor("cust", order.LineRequest{VariantID: "a", Quantity: 2})
	req.CouponCode = "SAVE10"

	// Pending coupons cannot be redeemed.
	_, err = f.orders.Create(ctx, req)
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Equal(t, 10, f.stock(t, "a"))

	resolved, err := f.tickets.ResolveCoupon(ctx, tk.ID, ticket.ActionApproved, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusApproved, resolved.Status)
	assert.Equal(t, "admin-1", resolved.AssignedToID)
	require.NotNil(t, resolved.ResolvedAt)

	o, err := f.orders.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("90").Equal(o.TotalAmount))
	assert.Equal(t, c.ID, o.AppliedCouponID)
	assert.Equal(t, 8, f.stock(t, "a"))

	_, err = f.tickets.ResolveCoupon(ctx, tk.ID, ticket.ActionDenied, "admin-2")
	require.ErrorIs(t, err, ticket.ErrAlreadyResolved)
}

func TestCouponDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "50.00"))

	_, tk, err := f.coupons.Create(ctx, coupon.CreateRequest{
		Code:          "NOPE",
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.NewFromInt(5),
		CreatedBy:     "pm-1",
	})
	require.NoError(t, err)

	_, err = f.tickets.ResolveRefund(ctx, tk.ID, ticket.ActionApproved, "fin-1")
	require.ErrorIs(t, err, ticket.ErrTypeMismatch)

	_, err = f.tickets.ResolveCoupon(ctx, tk.ID, ticket.ActionDenied, "admin-1")
	require.NoError(t, err)

	got, err := f.coupons.FindByCode(ctx, "NOPE")
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusDenied, got.Status)

	req := orderFor("cust", order.LineRequest{VariantID: "a", Quantity: 1})
	req.CouponCode = "NOPE"
	_, err = f.orders.Create(ctx, req)
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestCouponUsageLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "20.00"))

	_, tk, err := f.coupons.Create(ctx, coupon.CreateRequest{
		Code:          "ONCE",
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.NewFromInt(5),
		UsageLimit:    1,
		CreatedBy:     "pm-1",
	})
	require.NoError(t, err)
	_, err = f.tickets.ResolveCoupon(ctx, tk.ID, ticket.ActionApproved, "admin-1")
	require.NoError(t, err)

	req := orderFor("cust", order.LineRequest{VariantID: "a", Quantity: 1})
	req.CouponCode = "ONCE"
	_, err = f.orders.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.orders.Create(ctx, req)
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Equal(t, 9, f.stock(t, "a"))
}

func TestReturnAndRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "25.00"))

	o, err := f.orders.Create(ctx, orderFor("alice", order.LineRequest{VariantID: "a", Quantity: 2}))
	require.NoError(t, err)

	_, err = f.orders.RequestReturn(ctx, "alice", o.ID)
	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)

	for _, next := range []order.Status{order.StatusDispatched, order.StatusDelivered} {
		_, err = f.orders.UpdateStatus(ctx, o.ID, next)
		require.NoError(t, err)
	}

	_, err = f.orders.RequestReturn(ctx, "bob", o.ID)
	require.ErrorIs(t, err, order.ErrForbidden)

	returned, err := f.orders.RequestReturn(ctx, "alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReturned, returned.Status)

	tk, err := f.orders.RaiseRefundTicket(ctx, "om-1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.TypeRefundRequest, tk.Type())

	_, err = f.orders.RaiseRefundTicket(ctx, "om-1", o.ID)
	require.ErrorIs(t, err, ticket.ErrAlreadyOpen)

	open, err := f.tickets.ListOpen(ctx, ticket.TypeRefundRequest)
	require.NoError(t, err)
	require.Len(t, open, 1)
	details := open[0].Details.(ticket.RefundRequest)
	assert.True(t, decimal.RequireFromString("50").Equal(details.TotalAmount))

	_, err = f.tickets.ResolveRefund(ctx, tk.ID, ticket.ActionApproved, "fin-1")
	require.NoError(t, err)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, got.Status)

	_, err = f.orders.UpdateStatus(ctx, o.ID, order.StatusProcessing)
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, order.StatusRefunded, itErr.From)
}

func TestRefundDenied_OrderStaysReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "25.00"))

	o, err := f.orders.Create(ctx, orderFor("alice", order.LineRequest{VariantID: "a", Quantity: 1}))
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, o.ID, order.StatusReturned)
	require.NoError(t, err)

	tk, err := f.orders.RaiseRefundTicket(ctx, "om-1", o.ID)
	require.NoError(t, err)
	_, err = f.tickets.ResolveRefund(ctx, tk.ID, ticket.ActionDenied, "fin-1")
	require.NoError(t, err)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReturned, got.Status)

	// A denied ticket no longer blocks a fresh request.
	_, err = f.orders.RaiseRefundTicket(ctx, "om-1", o.ID)
	require.NoError(t, err)
}

func TestIdempotentCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "1.00"))

	req := orderFor("cust", order.LineRequest{VariantID: "a", Quantity: 4})
	req.IdempotencyKey = "retry-1"

	first, err := f.orders.Create(ctx, req)
	require.NoError(t, err)
	second, err := f.orders.Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 6, f.stock(t, "a"))

	history, err := f.orders.History(ctx, "cust")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variant("a", 10, "1.00"))

	var ids []string
	for range 3 {
		o, err := f.orders.Create(ctx, orderFor("cust", order.LineRequest{VariantID: "a", Quantity: 1}))
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	_, err := f.orders.Create(ctx, orderFor("other", order.LineRequest{VariantID: "a", Quantity: 1}))
	require.NoError(t, err)

	history, err := f.orders.History(ctx, "cust")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[0], history[2].ID)

	all, err := f.orders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
