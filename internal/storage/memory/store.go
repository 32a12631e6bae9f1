// Package memory is an in-process implementation of every repository with
// snapshot-based transactions. It backs tests and the storage-less demo mode.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/domain/txn"
)

var _ txn.Transactor = (*Store)(nil)

// Store holds all entities in maps guarded by one mutex. A transaction holds
// the mutex from start to finish, so transactions are serialized.
type Store struct {
	mu sync.Mutex
	data
}

type data struct {
	variants map[string]inventory.Variant
	prices   map[string]decimal.Decimal
	coupons  map[string]coupon.Coupon
	orders   map[string]order.Order
	tickets  map[string]ticket.Ticket
	apiKeys  map[string]auth.APIKeyInfo
	// seq orders inserts so listings are stable when timestamps collide.
	seq      int64
	orderSeq map[string]int64
	tickSeq  map[string]int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: data{
		variants: make(map[string]inventory.Variant),
		prices:   make(map[string]decimal.Decimal),
		coupons:  make(map[string]coupon.Coupon),
		orders:   make(map[string]order.Order),
		tickets:  make(map[string]ticket.Ticket),
		apiKeys:  make(map[string]auth.APIKeyInfo),
		orderSeq: make(map[string]int64),
		tickSeq:  make(map[string]int64),
	}}
}

// clone copies every map. Values are copied too; order items are cloned by
// the order repository on write so sharing slices here is safe.
func (d *data) clone() data {
	return data{
		variants: maps.Clone(d.variants),
		prices:   maps.Clone(d.prices),
		coupons:  maps.Clone(d.coupons),
		orders:   maps.Clone(d.orders),
		tickets:  maps.Clone(d.tickets),
		apiKeys:  maps.Clone(d.apiKeys),
		seq:      d.seq,
		orderSeq: maps.Clone(d.orderSeq),
		tickSeq:  maps.Clone(d.tickSeq),
	}
}

type txKey struct{}

// InTx runs fn with exclusive access to the store. If fn fails every change
// it made is discarded.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = saved
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// acquire locks the store unless ctx already holds it through InTx.
func (s *Store) acquire(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

// Variants returns the inventory repository view of the store.
func (s *Store) Variants() *VariantRepository { return &VariantRepository{s: s} }

// Coupons returns the coupon repository view of the store.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Orders returns the order repository view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Tickets returns the ticket repository view of the store.
func (s *Store) Tickets() *TicketRepository { return &TicketRepository{s: s} }

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }
