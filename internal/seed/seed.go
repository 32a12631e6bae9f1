// Package seed loads demo data: the product catalog, one API key per role
// and a handful of coupons submitted for approval.
package seed

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/ticket"
)

// Product is a catalog entry with its variants.
type Product struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Variants []Variant
}

// Variant is a stocked SKU of a Product.
type Variant struct {
	ID    string
	SKU   string
	Stock int
}

// ParseCatalog decodes a JSON array of products.
func ParseCatalog(data []byte) ([]Product, error) {
	var products []Product
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return products, nil
}

func decodeProduct(d *jx.Decoder) (Product, error) {
	var p Product
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "price":
			p.Price, err = ticket.DecodeAmount(d)
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVariant(d)
				if err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return Product{}, err
	}
	if p.ID == "" {
		return Product{}, errors.New("product without id")
	}
	if p.Price.IsNegative() {
		return Product{}, errors.Errorf("product %s: negative price", p.ID)
	}
	return p, nil
}

func decodeVariant(d *jx.Decoder) (Variant, error) {
	var v Variant
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			v.ID, err = d.Str()
		case "sku":
			v.SKU, err = d.Str()
		case "stock":
			v.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return Variant{}, err
	}
	if v.ID == "" || v.SKU == "" {
		return Variant{}, errors.New("variant without id or sku")
	}
	if v.Stock < 0 {
		return Variant{}, errors.Errorf("variant %s: negative stock", v.ID)
	}
	return v, nil
}

// CatalogStore persists products and their variants.
type CatalogStore interface {
	PutProduct(ctx context.Context, id, name, category string, price decimal.Decimal) error
	PutVariant(ctx context.Context, v inventory.Variant, sku string) error
}

// LoadCatalog upserts every product and variant.
func LoadCatalog(ctx context.Context, store CatalogStore, products []Product) error {
	lg := zctx.From(ctx)
	for _, p := range products {
		if err := store.PutProduct(ctx, p.ID, p.Name, p.Category, p.Price); err != nil {
			return errors.Wrapf(err, "put product %s", p.ID)
		}
		for _, v := range p.Variants {
			if err := store.PutVariant(ctx, inventory.Variant{
				ID:            v.ID,
				ProductID:     p.ID,
				StockQuantity: v.Stock,
			}, v.SKU); err != nil {
				return errors.Wrapf(err, "put variant %s", v.ID)
			}
		}
		lg.Info("Seeded product",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("variants", len(p.Variants)),
		)
	}
	return nil
}

// Key is a raw API key and the actor it authenticates.
type Key struct {
	Key   string
	Name  string
	Actor auth.Actor
}

// DemoKeys returns one key per role plus a second customer.
func DemoKeys() []Key {
	return []Key{
		{Key: "demo-admin-key", Name: "Demo admin", Actor: auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}},
		{Key: "demo-pm-key", Name: "Demo product manager", Actor: auth.Actor{ID: "pm-1", Role: auth.RoleProductManager}},
		{Key: "demo-om-key", Name: "Demo order manager", Actor: auth.Actor{ID: "om-1", Role: auth.RoleOrderManager}},
		{Key: "demo-finance-key", Name: "Demo finance manager", Actor: auth.Actor{ID: "fin-1", Role: auth.RoleFinanceManager}},
		{Key: "demo-customer-key", Name: "Demo customer", Actor: auth.Actor{ID: "customer-1", Role: auth.RoleCustomer}},
		{Key: "demo-customer2-key", Name: "Second demo customer", Actor: auth.Actor{ID: "customer-2", Role: auth.RoleCustomer}},
	}
}

// KeyStore persists hashed API keys.
type KeyStore interface {
	Put(ctx context.Context, info auth.APIKeyInfo) error
}

// LoadKeys stores the HMAC of every key under pepper. Raw keys are never
// persisted.
func LoadKeys(ctx context.Context, store KeyStore, pepper []byte, keys []Key) error {
	for _, k := range keys {
		if k.Key == "" || !k.Actor.Role.Valid() {
			return errors.Errorf("invalid key for actor %q", k.Actor.ID)
		}
		info := auth.APIKeyInfo{
			ID:      "key-" + k.Actor.ID,
			KeyHash: auth.HashKey(pepper, k.Key),
			Name:    k.Name,
			Actor:   k.Actor,
		}
		if err := store.Put(ctx, info); err != nil {
			return errors.Wrapf(err, "put api key %s", info.ID)
		}
		zctx.From(ctx).Info("Seeded API key",
			zap.String("id", info.ID),
			zap.String("role", string(k.Actor.Role)),
		)
	}
	return nil
}

// CouponRegistry submits coupons for approval.
type CouponRegistry interface {
	Create(ctx context.Context, req coupon.CreateRequest) (*coupon.Coupon, *ticket.Ticket, error)
}

// DemoCoupons returns a few submissions attributed to createdBy.
func DemoCoupons(createdBy string) []coupon.CreateRequest {
	return []coupon.CreateRequest{
		{Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), CreatedBy: createdBy},
		{Code: "FIVEOFF", DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(5), UsageLimit: 100, CreatedBy: createdBy},
		{Code: "HALFPRICE", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(50), UsageLimit: 10, CreatedBy: createdBy},
	}
}

// SubmitCoupons registers every request, skipping codes that already exist.
// It returns the number of coupons created.
func SubmitCoupons(ctx context.Context, reg CouponRegistry, reqs []coupon.CreateRequest) (int, error) {
	lg := zctx.From(ctx)
	var created int
	for _, req := range reqs {
		c, t, err := reg.Create(ctx, req)
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			lg.Debug("Coupon already exists", zap.String("code", req.Code))
			continue
		case err != nil:
			return created, errors.Wrapf(err, "submit coupon %s", req.Code)
		}
		created++
		lg.Info("Submitted coupon",
			zap.String("code", c.Code),
			zap.String("ticket_id", t.ID),
		)
	}
	return created, nil
}
