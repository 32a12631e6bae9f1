package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, shipping_address_id, billing_address_id,
		subtotal, discount, applied_coupon_id, total_amount, status,
		idempotency_key, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, variant_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 AND idempotency_key = $2`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT order_id, variant_id, quantity, price_at_purchase
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	idempotencyKeyIndex = "orders_idempotency_key_idx"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order row and its items in one batch. Callers run it
// inside a transaction so a failed item insert discards the order too.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.CustomerID, o.ShippingAddressID, o.BillingAddressID,
		o.Subtotal, o.Discount, nullable(o.AppliedCouponID), o.TotalAmount, string(o.Status),
		nullable(o.IdempotencyKey), o.CreatedAt, o.UpdatedAt,
	)
	for i, item := range o.Items {
		b.Queue(insertOrderItemSQL, o.ID, i, item.VariantID, item.Quantity, item.PriceAtPurchase)
	}

	if err := conn(ctx, r.pool).SendBatch(ctx, b).Close(); err != nil {
		if isUniqueViolation(err, idempotencyKeyIndex) {
			return order.ErrDuplicateIdempotencyKey
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, getOrderSQL, id)
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, customerID, key string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByIdempotencyKeySQL, customerID, key)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return false, errors.Wrapf(err, "update order %q status", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByCustomerSQL, customerID)
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, listOrdersSQL)
}

func (r *OrderRepository) findOne(ctx context.Context, query string, args ...any) (*order.Order, error) {
	db := conn(ctx, r.pool)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}

	orders := []order.Order{o}
	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	db := conn(ctx, r.pool)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills the Items of every order with one query.
func loadItems(ctx context.Context, db DBTX, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := db.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    order.Item
		)
		if err := rows.Scan(&orderID, &item.VariantID, &item.Quantity, &item.PriceAtPurchase); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate order items")
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		couponID       *string
		status         string
		idempotencyKey *string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ShippingAddressID, &o.BillingAddressID,
		&o.Subtotal, &o.Discount, &couponID, &o.TotalAmount, &status,
		&idempotencyKey, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	if couponID != nil {
		o.AppliedCouponID = *couponID
	}
	if idempotencyKey != nil {
		o.IdempotencyKey = *idempotencyKey
	}
	return o, err
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
