package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/inventory"
)

const (
	// Rows are locked in id order so concurrent orders over the same
	// variants cannot deadlock.
	lookupVariantsSQL = `SELECT v.id, v.product_id, v.stock_quantity, p.original_price
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)
		ORDER BY v.id
		FOR UPDATE OF v`

	upsertProductSQL = `INSERT INTO products (id, name, category, original_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, original_price = EXCLUDED.original_price`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, sku, stock_quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET product_id = EXCLUDED.product_id, sku = EXCLUDED.sku, stock_quantity = EXCLUDED.stock_quantity`

	decrementStockSQL = `UPDATE product_variants
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`
)

var _ inventory.Repository = (*VariantRepository)(nil)

// VariantRepository implements inventory.Repository backed by PostgreSQL.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// Lookup returns the variants that exist among ids, priced at their product's
// original price, and locks them until the surrounding transaction ends.
func (r *VariantRepository) Lookup(ctx context.Context, ids []string) ([]inventory.Variant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, lookupVariantsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query variants")
	}
	variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Variant, error) {
		var v inventory.Variant
		err := row.Scan(&v.ID, &v.ProductID, &v.StockQuantity, &v.UnitPrice)
		return v, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan variants")
	}
	return variants, nil
}

// Decrement subtracts quantity from the variant's stock only if enough is
// left, reporting whether a row changed.
func (r *VariantRepository) Decrement(ctx context.Context, id string, quantity int) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, decrementStockSQL, id, quantity)
	if err != nil {
		return false, errors.Wrapf(err, "decrement stock of %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

// PutProduct inserts or replaces a catalog product. Its price is the unit
// price of every variant.
func (r *VariantRepository) PutProduct(ctx context.Context, id, name, category string, price decimal.Decimal) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL, id, name, category, price); err != nil {
		return errors.Wrapf(err, "store product %q", id)
	}
	return nil
}

// PutVariant inserts or replaces a variant and sets its stock level.
func (r *VariantRepository) PutVariant(ctx context.Context, v inventory.Variant, sku string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertVariantSQL, v.ID, v.ProductID, sku, v.StockQuantity); err != nil {
		return errors.Wrapf(err, "store variant %q", v.ID)
	}
	return nil
}
