package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
)

var (
	_ inventory.Repository = (*VariantRepository)(nil)
	_ coupon.Repository    = (*CouponRepository)(nil)
	_ order.Repository     = (*OrderRepository)(nil)
	_ ticket.Repository    = (*TicketRepository)(nil)
	_ auth.Repository      = (*APIKeyRepository)(nil)
)

// VariantRepository implements inventory.Repository.
type VariantRepository struct{ s *Store }

// Put inserts or replaces a variant as given, unit price included.
func (r *VariantRepository) Put(ctx context.Context, v inventory.Variant) {
	defer r.s.acquire(ctx)()
	r.s.variants[v.ID] = v
}

// PutProduct records a product price. Variants stored afterwards with
// PutVariant are priced from it.
func (r *VariantRepository) PutProduct(ctx context.Context, id, _, _ string, price decimal.Decimal) error {
	defer r.s.acquire(ctx)()
	r.s.prices[id] = price
	return nil
}

// PutVariant stores v priced at its product's price.
func (r *VariantRepository) PutVariant(ctx context.Context, v inventory.Variant, _ string) error {
	defer r.s.acquire(ctx)()
	price, ok := r.s.prices[v.ProductID]
	if !ok {
		return errors.Errorf("product %q not found", v.ProductID)
	}
	v.UnitPrice = price
	r.s.variants[v.ID] = v
	return nil
}

func (r *VariantRepository) Lookup(ctx context.Context, ids []string) ([]inventory.Variant, error) {
	defer r.s.acquire(ctx)()
	out := make([]inventory.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.s.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *VariantRepository) Decrement(ctx context.Context, id string, quantity int) (bool, error) {
	defer r.s.acquire(ctx)()
	v, ok := r.s.variants[id]
	if !ok || v.StockQuantity < quantity {
		return false, nil
	}
	v.StockQuantity -= quantity
	r.s.variants[id] = v
	return true, nil
}

// CouponRepository implements coupon.Repository.
type CouponRepository struct{ s *Store }

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	defer r.s.acquire(ctx)()
	for _, existing := range r.s.coupons {
		if existing.Code == c.Code {
			return coupon.ErrDuplicateCode
		}
	}
	r.s.coupons[c.ID] = *c
	return nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	defer r.s.acquire(ctx)()
	for _, c := range r.s.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	defer r.s.acquire(ctx)()
	c, ok := r.s.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (r *CouponRepository) UpdateStatus(ctx context.Context, id string, status coupon.Status) error {
	defer r.s.acquire(ctx)()
	c, ok := r.s.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	c.Status = status
	r.s.coupons[id] = c
	return nil
}

func (r *CouponRepository) IncrementUses(ctx context.Context, id string) (bool, error) {
	defer r.s.acquire(ctx)()
	c, ok := r.s.coupons[id]
	if !ok || (c.UsageLimit > 0 && c.TimesUsed >= c.UsageLimit) {
		return false, nil
	}
	c.TimesUsed++
	r.s.coupons[id] = c
	return true, nil
}

// Delete removes a coupon. Tickets referencing it are left in place.
func (r *CouponRepository) Delete(ctx context.Context, id string) {
	defer r.s.acquire(ctx)()
	delete(r.s.coupons, id)
}

// OrderRepository implements order.Repository.
type OrderRepository struct{ s *Store }

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	defer r.s.acquire(ctx)()
	if o.IdempotencyKey != "" {
		for _, existing := range r.s.orders {
			if existing.CustomerID == o.CustomerID && existing.IdempotencyKey == o.IdempotencyKey {
				return order.ErrDuplicateIdempotencyKey
			}
		}
	}
	r.s.orders[o.ID] = cloneOrder(*o)
	r.s.orderSeq[o.ID] = r.s.next()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.acquire(ctx)()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

// GetForUpdate is Get; the store lock already serializes transactions.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	defer r.s.acquire(ctx)()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	r.s.orders[id] = o
	return true, nil
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, customerID, key string) (*order.Order, error) {
	defer r.s.acquire(ctx)()
	for _, o := range r.s.orders {
		if o.CustomerID == customerID && o.IdempotencyKey == key {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, func(o order.Order) bool { return o.CustomerID == customerID })
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, func(order.Order) bool { return true })
}

// list returns matching orders newest first.
func (r *OrderRepository) list(ctx context.Context, keep func(order.Order) bool) ([]order.Order, error) {
	defer r.s.acquire(ctx)()
	out := make([]order.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		return cmp.Compare(r.s.orderSeq[b.ID], r.s.orderSeq[a.ID])
	})
	return out, nil
}

// TicketRepository implements ticket.Repository.
type TicketRepository struct{ s *Store }

func (r *TicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	defer r.s.acquire(ctx)()
	for _, existing := range r.s.tickets {
		if existing.Status == ticket.StatusOpen && existing.Type() == t.Type() &&
			existing.Details.SubjectID() == t.Details.SubjectID() {
			return ticket.ErrAlreadyOpen
		}
	}
	r.s.tickets[t.ID] = *t
	r.s.tickSeq[t.ID] = r.s.next()
	return nil
}

func (r *TicketRepository) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	defer r.s.acquire(ctx)()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	return &t, nil
}

// GetForUpdate is Get; the store lock already serializes transactions.
func (r *TicketRepository) GetForUpdate(ctx context.Context, id string) (*ticket.Ticket, error) {
	return r.Get(ctx, id)
}

func (r *TicketRepository) Resolve(ctx context.Context, id string, status ticket.Status, resolverID string, at time.Time) (bool, error) {
	defer r.s.acquire(ctx)()
	t, ok := r.s.tickets[id]
	if !ok || t.Status != ticket.StatusOpen {
		return false, nil
	}
	t.Status = status
	t.AssignedToID = resolverID
	t.ResolvedAt = &at
	r.s.tickets[id] = t
	return true, nil
}

func (r *TicketRepository) ListOpen(ctx context.Context, typ ticket.Type) ([]ticket.Ticket, error) {
	defer r.s.acquire(ctx)()
	var out []ticket.Ticket
	for _, t := range r.s.tickets {
		if t.Status == ticket.StatusOpen && (typ == "" || t.Type() == typ) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b ticket.Ticket) int {
		return cmp.Compare(r.s.tickSeq[a.ID], r.s.tickSeq[b.ID])
	})
	return out, nil
}

// APIKeyRepository implements auth.Repository.
type APIKeyRepository struct{ s *Store }

// Put inserts or replaces an API key.
func (r *APIKeyRepository) Put(ctx context.Context, info auth.APIKeyInfo) error {
	defer r.s.acquire(ctx)()
	r.s.apiKeys[info.KeyHash] = info
	return nil
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	defer r.s.acquire(ctx)()
	info, ok := r.s.apiKeys[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &info, nil
}
