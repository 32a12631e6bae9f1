package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/ticket"
)

// --- Mock implementations ---

type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type mockLedger struct {
	prices   map[string]decimal.Decimal
	checkErr error
	reserved map[string]int
}

func (m *mockLedger) Check(_ context.Context, reqs []inventory.Request) ([]inventory.Variant, error) {
	if m.checkErr != nil {
		return nil, m.checkErr
	}
	out := make([]inventory.Variant, len(reqs))
	for i, r := range reqs {
		out[i] = inventory.Variant{ID: r.VariantID, StockQuantity: 100, UnitPrice: m.prices[r.VariantID]}
	}
	return out, nil
}

func (m *mockLedger) Reserve(_ context.Context, id string, qty int) error {
	if m.reserved == nil {
		m.reserved = make(map[string]int)
	}
	m.reserved[id] += qty
	return nil
}

type mockValidator struct {
	coupon   *coupon.Coupon
	err      error
	redeemed int
}

func (m *mockValidator) Validate(_ context.Context, _ string) (*coupon.Coupon, error) {
	return m.coupon, m.err
}

func (m *mockValidator) Redeem(_ context.Context, _ *coupon.Coupon) error {
	m.redeemed++
	return nil
}

type mockOrderRepo struct {
	byID      map[string]*Order
	createErr error
	created   []*Order
}

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{byID: make(map[string]*Order)}
	for _, o := range orders {
		m.byID[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, o)
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return m.Get(ctx, id)
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time) (bool, error) {
	o, ok := m.byID[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	return true, nil
}

func (m *mockOrderRepo) FindByIdempotencyKey(_ context.Context, customerID, key string) (*Order, error) {
	for _, o := range m.byID {
		if o.CustomerID == customerID && o.IdempotencyKey == key {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, _ string) ([]Order, error) { return nil, nil }
func (m *mockOrderRepo) List(_ context.Context) ([]Order, error)                     { return nil, nil }

type mockOpener struct {
	opened []ticket.Details
}

func (m *mockOpener) Open(_ context.Context, createdBy string, d ticket.Details) (*ticket.Ticket, error) {
	m.opened = append(m.opened, d)
	return &ticket.Ticket{ID: "t1", Details: d, Status: ticket.StatusOpen, CreatedByID: createdBy}, nil
}

// --- Helpers ---

func validRequest(items ...LineRequest) CreateRequest {
	return CreateRequest{
		CustomerID:        "cust-1",
		ShippingAddressID: "addr-ship",
		BillingAddressID:  "addr-bill",
		Items:             items,
	}
}

func newTestService(repo *mockOrderRepo, ledger *mockLedger, v *mockValidator) (*Service, *mockOpener) {
	opener := &mockOpener{}
	return NewService(passTx{}, repo, ledger, v, opener), opener
}

// --- Tests ---

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{name: "empty items", req: validRequest(), wantErr: ErrEmptyItems},
		{name: "missing customer", req: CreateRequest{ShippingAddressID: "a", BillingAddressID: "b", Items: []LineRequest{{VariantID: "v", Quantity: 1}}}, wantErr: ErrMissingReference},
		{name: "missing billing address", req: CreateRequest{CustomerID: "c", ShippingAddressID: "a", Items: []LineRequest{{VariantID: "v", Quantity: 1}}}, wantErr: ErrMissingReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(newMockOrderRepo(), &mockLedger{}, &mockValidator{})
			_, err := svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_InvalidQuantity(t *testing.T) {
	svc, _ := newTestService(newMockOrderRepo(), &mockLedger{}, &mockValidator{})

	_, err := svc.Create(context.Background(), validRequest(
		LineRequest{VariantID: "v1", Quantity: 1},
		LineRequest{VariantID: "v2", Quantity: 0},
	))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "v2", iqErr.VariantID)
}

func TestCreate_QuantityAboveLineMaximum(t *testing.T) {
	ledger := &mockLedger{}
	svc, _ := newTestService(newMockOrderRepo(), ledger, &mockValidator{})

	_, err := svc.Create(context.Background(), validRequest(
		LineRequest{VariantID: "v1", Quantity: MaxLineQuantity},
		LineRequest{VariantID: "v1", Quantity: MaxLineQuantity + 1},
	))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "v1", iqErr.VariantID)
}

func TestCreate_SnapshotsPricesAndTotals(t *testing.T) {
	repo := newMockOrderRepo()
	ledger := &mockLedger{prices: map[string]decimal.Decimal{
		"v1": decimal.RequireFromString("10.00"),
		"v2": decimal.RequireFromString("20.00"),
	}}
	v := &mockValidator{coupon: &coupon.Coupon{
		ID:            "c1",
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.NewFromInt(5),
		Status:        coupon.StatusActive,
	}}
	svc, _ := newTestService(repo, ledger, v)

	req := validRequest(LineRequest{VariantID: "v1", Quantity: 2}, LineRequest{VariantID: "v2", Quantity: 1})
	req.CouponCode = "FIVE"
	o, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, o.Status)
	assert.True(t, decimal.RequireFromString("40.00").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("35.00").Equal(o.TotalAmount))
	assert.True(t, decimal.RequireFromString("5.00").Equal(o.Discount))
	assert.Equal(t, "c1", o.AppliedCouponID)
	require.Len(t, o.Items, 2)
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.Items[0].PriceAtPurchase))
	assert.Equal(t, map[string]int{"v1": 2, "v2": 1}, ledger.reserved)
	assert.Equal(t, 1, v.redeemed)
}

func TestCreate_InvalidCoupon(t *testing.T) {
	repo := newMockOrderRepo()
	ledger := &mockLedger{prices: map[string]decimal.Decimal{"v1": decimal.NewFromInt(10)}}
	svc, _ := newTestService(repo, ledger, &mockValidator{err: coupon.ErrInvalidCoupon})

	req := validRequest(LineRequest{VariantID: "v1", Quantity: 1})
	req.CouponCode = "BOGUS"
	_, err := svc.Create(context.Background(), req)

	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Empty(t, repo.created)
	assert.Empty(t, ledger.reserved)
}

func TestCreate_StockFailure(t *testing.T) {
	repo := newMockOrderRepo()
	ledger := &mockLedger{checkErr: &inventory.InsufficientStockError{VariantID: "v9"}}
	svc, _ := newTestService(repo, ledger, &mockValidator{})

	_, err := svc.Create(context.Background(), validRequest(LineRequest{VariantID: "v9", Quantity: 1}))

	var isErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "v9", isErr.VariantID)
	assert.Empty(t, repo.created)
}

func TestCreate_IdempotentReplay(t *testing.T) {
	existing := &Order{ID: "o-existing", CustomerID: "cust-1", IdempotencyKey: "key-1"}
	repo := newMockOrderRepo(existing)
	ledger := &mockLedger{prices: map[string]decimal.Decimal{"v1": decimal.NewFromInt(10)}}
	svc, _ := newTestService(repo, ledger, &mockValidator{})

	req := validRequest(LineRequest{VariantID: "v1", Quantity: 1})
	req.IdempotencyKey = "key-1"
	o, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "o-existing", o.ID)
	assert.Empty(t, repo.created)
	assert.Empty(t, ledger.reserved)
}

func TestCreate_RepositoryError(t *testing.T) {
	repo := newMockOrderRepo()
	repo.createErr = errors.New("db write failed")
	ledger := &mockLedger{prices: map[string]decimal.Decimal{"v1": decimal.NewFromInt(10)}}
	svc, _ := newTestService(repo, ledger, &mockValidator{})

	_, err := svc.Create(context.Background(), validRequest(LineRequest{VariantID: "v1", Quantity: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db write failed")
	assert.Empty(t, ledger.reserved)
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusProcessing, StatusDispatched, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusReturned, true},
		{StatusProcessing, StatusDelivered, false},
		{StatusDispatched, StatusDelivered, true},
		{StatusDispatched, StatusCancelled, true},
		{StatusDispatched, StatusReturned, false},
		{StatusDelivered, StatusReturned, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusReturned, StatusDelivered, false},
		{StatusRefunded, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			repo := newMockOrderRepo(&Order{ID: "o1", Status: tt.from})
			svc, _ := newTestService(repo, &mockLedger{}, &mockValidator{})

			_, err := svc.UpdateStatus(context.Background(), "o1", tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, repo.byID["o1"].Status)
				return
			}
			var itErr *InvalidTransitionError
			require.ErrorAs(t, err, &itErr)
			assert.Equal(t, tt.from, itErr.From)
			assert.Equal(t, tt.from, repo.byID["o1"].Status)
		})
	}
}

func TestUpdateStatus_UnknownTargetAndOrder(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusProcessing})
	svc, _ := newTestService(repo, &mockLedger{}, &mockValidator{})

	_, err := svc.UpdateStatus(context.Background(), "o1", "Lost")
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = svc.UpdateStatus(context.Background(), "o1", StatusRefunded)
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = svc.UpdateStatus(context.Background(), "nope", StatusDispatched)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRequestReturn(t *testing.T) {
	t.Run("owner of delivered order", func(t *testing.T) {
		repo := newMockOrderRepo(&Order{ID: "o1", CustomerID: "a", Status: StatusDelivered})
		svc, _ := newTestService(repo, &mockLedger{}, &mockValidator{})
		o, err := svc.RequestReturn(context.Background(), "a", "o1")
		require.NoError(t, err)
		assert.Equal(t, StatusReturned, o.Status)
	})

	t.Run("other customer", func(t *testing.T) {
		repo := newMockOrderRepo(&Order{ID: "o1", CustomerID: "b", Status: StatusDelivered})
		svc, _ := newTestService(repo, &mockLedger{}, &mockValidator{})
		_, err := svc.RequestReturn(context.Background(), "a", "o1")
		require.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, StatusDelivered, repo.byID["o1"].Status)
	})

	t.Run("not delivered", func(t *testing.T) {
		repo := newMockOrderRepo(&Order{ID: "o1", CustomerID: "a", Status: StatusDispatched})
		svc, _ := newTestService(repo, &mockLedger{}, &mockValidator{})
		_, err := svc.RequestReturn(context.Background(), "a", "o1")
		var itErr *InvalidTransitionError
		require.ErrorAs(t, err, &itErr)
		assert.Equal(t, StatusDispatched, itErr.From)
	})
}

func TestRaiseRefundTicket(t *testing.T) {
	repo := newMockOrderRepo(
		&Order{ID: "o1", CustomerID: "a", Status: StatusReturned, TotalAmount: decimal.RequireFromString("90.00")},
		&Order{ID: "o2", CustomerID: "a", Status: StatusDelivered},
	)
	svc, opener := newTestService(repo, &mockLedger{}, &mockValidator{})

	tk, err := svc.RaiseRefundTicket(context.Background(), "mgr-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", tk.CreatedByID)
	require.Len(t, opener.opened, 1)
	d := opener.opened[0].(ticket.RefundRequest)
	assert.Equal(t, "o1", d.OrderID)
	assert.Equal(t, "a", d.CustomerID)
	assert.True(t, decimal.RequireFromString("90").Equal(d.TotalAmount))
	assert.Equal(t, StatusReturned, repo.byID["o1"].Status)

	_, err = svc.RaiseRefundTicket(context.Background(), "mgr-1", "o2")
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)

	_, err = svc.RaiseRefundTicket(context.Background(), "mgr-1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRefundHandler(t *testing.T) {
	refundTicket := &ticket.Ticket{Details: ticket.RefundRequest{OrderID: "o1"}}

	t.Run("approve returned order", func(t *testing.T) {
		repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusReturned})
		require.NoError(t, NewRefundHandler(repo).Apply(context.Background(), refundTicket, ticket.ActionApproved))
		assert.Equal(t, StatusRefunded, repo.byID["o1"].Status)
	})

	t.Run("deny leaves order", func(t *testing.T) {
		repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusReturned})
		require.NoError(t, NewRefundHandler(repo).Apply(context.Background(), refundTicket, ticket.ActionDenied))
		assert.Equal(t, StatusReturned, repo.byID["o1"].Status)
	})

	t.Run("order moved on since raise", func(t *testing.T) {
		repo := newMockOrderRepo(&Order{ID: "o1", Status: StatusCancelled})
		err := NewRefundHandler(repo).Apply(context.Background(), refundTicket, ticket.ActionApproved)
		var itErr *InvalidTransitionError
		require.ErrorAs(t, err, &itErr)
		assert.Equal(t, StatusCancelled, repo.byID["o1"].Status)
	})

	t.Run("order gone", func(t *testing.T) {
		err := NewRefundHandler(newMockOrderRepo()).Apply(context.Background(), refundTicket, ticket.ActionApproved)
		require.ErrorIs(t, err, ticket.ErrSubjectNotFound)
	})
}
