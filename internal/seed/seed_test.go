package seed

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/storage/memory"
)

func TestParseCatalog_Embedded(t *testing.T) {
	products, err := ParseCatalog(db.Catalog)
	require.NoError(t, err)
	require.NotEmpty(t, products)

	seen := make(map[string]bool)
	for _, p := range products {
		assert.NotEmpty(t, p.Name, p.ID)
		assert.True(t, p.Price.IsPositive(), p.ID)
		require.NotEmpty(t, p.Variants, p.ID)
		for _, v := range p.Variants {
			assert.False(t, seen[v.ID], "duplicate variant %s", v.ID)
			seen[v.ID] = true
		}
	}
}

func TestParseCatalog(t *testing.T) {
	products, err := ParseCatalog([]byte(`[
		{"id":"p","name":"P","price":12.5,"extra":true,"variants":[{"id":"v","sku":"S","stock":3}]}
	]`))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, decimal.RequireFromString("12.5").Equal(products[0].Price))
	assert.Equal(t, []Variant{{ID: "v", SKU: "S", Stock: 3}}, products[0].Variants)

	for name, input := range map[string]string{
		"not an array":   `{"id":"p"}`,
		"missing id":     `[{"name":"P","price":"1"}]`,
		"negative price": `[{"id":"p","price":"-1"}]`,
		"negative stock": `[{"id":"p","price":"1","variants":[{"id":"v","sku":"S","stock":-1}]}]`,
		"missing sku":    `[{"id":"p","price":"1","variants":[{"id":"v","stock":1}]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(input))
			require.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	products, err := ParseCatalog(db.Catalog)
	require.NoError(t, err)
	require.NoError(t, LoadCatalog(ctx, store.Variants(), products))

	first := products[0]
	vs, err := store.Variants().Lookup(ctx, []string{first.Variants[0].ID})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, first.Variants[0].Stock, vs[0].StockQuantity)
	assert.True(t, first.Price.Equal(vs[0].UnitPrice))
}

func TestLoadKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pepper := []byte("pepper")

	keys := DemoKeys()
	require.NoError(t, LoadKeys(ctx, store.APIKeys(), pepper, keys))

	resolver := auth.NewKeyResolver(store.APIKeys(), pepper)
	roles := make(map[auth.Role]bool)
	for _, k := range keys {
		actor, err := resolver.Resolve(ctx, k.Key)
		require.NoError(t, err)
		assert.Equal(t, k.Actor, actor)
		roles[actor.Role] = true
	}
	assert.Len(t, roles, 5)

	err := LoadKeys(ctx, store.APIKeys(), pepper, []Key{{Key: "", Actor: auth.Actor{ID: "x", Role: auth.RoleAdmin}}})
	require.Error(t, err)
}

func TestSubmitCoupons_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tickets := ticket.NewService(store, store.Tickets())
	registry := coupon.NewService(store, store.Coupons(), tickets)

	reqs := DemoCoupons("pm-1")
	n, err := SubmitCoupons(ctx, registry, reqs)
	require.NoError(t, err)
	assert.Equal(t, len(reqs), n)

	n, err = SubmitCoupons(ctx, registry, reqs)
	require.NoError(t, err)
	assert.Zero(t, n)

	open, err := tickets.ListOpen(ctx, ticket.TypeCouponApproval)
	require.NoError(t, err)
	assert.Len(t, open, len(reqs))

	_, err = SubmitCoupons(ctx, registry, []coupon.CreateRequest{{Code: "BAD", DiscountType: "bogus", CreatedBy: "pm-1"}})
	require.ErrorIs(t, err, coupon.ErrInvalidDefinition)
}
