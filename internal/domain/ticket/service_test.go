package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// snapshotTx restores the repository contents when fn fails.
type snapshotTx struct {
	repo *mockRepo
}

func (s snapshotTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := make(map[string]Ticket, len(s.repo.byID))
	for k, v := range s.repo.byID {
		saved[k] = v
	}
	if err := fn(ctx); err != nil {
		s.repo.byID = saved
		return err
	}
	return nil
}

type mockRepo struct {
	byID map[string]Ticket
}

func newMockRepo(tickets ...Ticket) *mockRepo {
	m := &mockRepo{byID: make(map[string]Ticket)}
	for _, t := range tickets {
		m.byID[t.ID] = t
	}
	return m
}

func (m *mockRepo) Create(_ context.Context, t *Ticket) error {
	for _, existing := range m.byID {
		if existing.Status == StatusOpen && existing.Type() == t.Type() &&
			existing.Details.SubjectID() == t.Details.SubjectID() {
			return ErrAlreadyOpen
		}
	}
	m.byID[t.ID] = *t
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Ticket, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id string) (*Ticket, error) {
	return m.Get(ctx, id)
}

func (m *mockRepo) Resolve(_ context.Context, id string, status Status, resolverID string, at time.Time) (bool, error) {
	t, ok := m.byID[id]
	if !ok || t.Status != StatusOpen {
		return false, nil
	}
	t.Status = status
	t.AssignedToID = resolverID
	t.ResolvedAt = &at
	m.byID[id] = t
	return true, nil
}

func (m *mockRepo) ListOpen(_ context.Context, typ Type) ([]Ticket, error) {
	var out []Ticket
	for _, t := range m.byID {
		if t.Status == StatusOpen && (typ == "" || t.Type() == typ) {
			out = append(out, t)
		}
	}
	return out, nil
}

type recordingHandler struct {
	calls []Action
	err   error
}

func (h *recordingHandler) Apply(_ context.Context, _ *Ticket, action Action) error {
	h.calls = append(h.calls, action)
	return h.err
}

// --- Helpers ---

func couponTicket(id string) Ticket {
	return Ticket{
		ID:      id,
		Details: CouponApproval{CouponID: "c-" + id, CouponCode: "SAVE10"},
		Status:  StatusOpen,
	}
}

func refundTicket(id string) Ticket {
	return Ticket{
		ID:      id,
		Details: RefundRequest{OrderID: "o-" + id, CustomerID: "u1", TotalAmount: decimal.NewFromInt(90)},
		Status:  StatusOpen,
	}
}

func newTestService(repo *mockRepo) (*Service, *recordingHandler, *recordingHandler) {
	svc := NewService(snapshotTx{repo: repo}, repo)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	coupons := &recordingHandler{}
	refunds := &recordingHandler{}
	svc.Register(TypeCouponApproval, coupons)
	svc.Register(TypeRefundRequest, refunds)
	return svc, coupons, refunds
}

// --- Tests ---

func TestResolve_Approve(t *testing.T) {
	repo := newMockRepo(couponTicket("t1"))
	svc, coupons, _ := newTestService(repo)

	got, err := svc.ResolveCoupon(context.Background(), "t1", ActionApproved, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, "admin-1", got.AssignedToID)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, []Action{ActionApproved}, coupons.calls)
	assert.Equal(t, StatusApproved, repo.byID["t1"].Status)
}

func TestResolve_SecondResolutionFails(t *testing.T) {
	repo := newMockRepo(refundTicket("t1"))
	svc, _, refunds := newTestService(repo)

	_, err := svc.ResolveRefund(context.Background(), "t1", ActionDenied, "fin-1")
	require.NoError(t, err)

	_, err = svc.ResolveRefund(context.Background(), "t1", ActionApproved, "fin-2")
	require.ErrorIs(t, err, ErrAlreadyResolved)

	// The subject only saw the first decision.
	assert.Equal(t, []Action{ActionDenied}, refunds.calls)
	assert.Equal(t, StatusDenied, repo.byID["t1"].Status)
	assert.Equal(t, "fin-1", repo.byID["t1"].AssignedToID)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		id      string
		action  Action
		wantErr error
	}{
		{name: "unknown ticket", typ: TypeCouponApproval, id: "missing", action: ActionApproved, wantErr: ErrNotFound},
		{name: "coupon endpoint on refund ticket", typ: TypeCouponApproval, id: "refund", action: ActionApproved, wantErr: ErrTypeMismatch},
		{name: "refund endpoint on coupon ticket", typ: TypeRefundRequest, id: "coupon", action: ActionDenied, wantErr: ErrTypeMismatch},
		{name: "invalid action", typ: TypeCouponApproval, id: "coupon", action: "Maybe", wantErr: ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo(couponTicket("coupon"), refundTicket("refund"))
			svc, coupons, refunds := newTestService(repo)

			_, err := svc.Resolve(context.Background(), tt.typ, tt.id, tt.action, "admin")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, coupons.calls)
			assert.Empty(t, refunds.calls)
			assert.Equal(t, StatusOpen, repo.byID["coupon"].Status)
			assert.Equal(t, StatusOpen, repo.byID["refund"].Status)
		})
	}
}

func TestResolve_HandlerFailureLeavesTicketOpen(t *testing.T) {
	repo := newMockRepo(couponTicket("t1"))
	svc, coupons, _ := newTestService(repo)
	coupons.err = ErrSubjectNotFound

	_, err := svc.ResolveCoupon(context.Background(), "t1", ActionApproved, "admin")
	require.ErrorIs(t, err, ErrSubjectNotFound)
	assert.Equal(t, StatusOpen, repo.byID["t1"].Status)
	assert.Empty(t, repo.byID["t1"].AssignedToID)
}

func TestResolve_NoHandler(t *testing.T) {
	repo := newMockRepo(couponTicket("t1"))
	svc := NewService(snapshotTx{repo: repo}, repo)

	_, err := svc.ResolveCoupon(context.Background(), "t1", ActionApproved, "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler")
}

func TestOpen(t *testing.T) {
	repo := newMockRepo()
	svc, _, _ := newTestService(repo)

	d := RefundRequest{OrderID: "o1", CustomerID: "u1", TotalAmount: decimal.RequireFromString("12.50")}
	tk, err := svc.Open(context.Background(), "mgr", d)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, tk.Status)
	assert.Equal(t, TypeRefundRequest, tk.Type())
	assert.Equal(t, "mgr", tk.CreatedByID)

	_, err = svc.Open(context.Background(), "mgr", d)
	require.ErrorIs(t, err, ErrAlreadyOpen)

	_, err = svc.Open(context.Background(), "mgr", RefundRequest{})
	require.Error(t, err)
}

func TestListOpen(t *testing.T) {
	resolved := couponTicket("done")
	resolved.Status = StatusApproved
	repo := newMockRepo(couponTicket("c1"), refundTicket("r1"), resolved)
	svc, _, _ := newTestService(repo)

	all, err := svc.ListOpen(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	refunds, err := svc.ListOpen(context.Background(), TypeRefundRequest)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "r1", refunds[0].ID)
}

func TestHandlerFunc(t *testing.T) {
	var got Action
	h := HandlerFunc(func(_ context.Context, _ *Ticket, a Action) error {
		got = a
		return errors.New("boom")
	})
	err := h.Apply(context.Background(), &Ticket{}, ActionDenied)
	require.Error(t, err)
	assert.Equal(t, ActionDenied, got)
}
