package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/txn"
)

var _ txn.Transactor = (*Transactor)(nil)

// DBTX is the query surface shared by the pool and a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

// conn returns the transaction carried by ctx, or pool.
func conn(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Transactor runs functions inside a read-committed transaction. Repositories
// created from the same pool pick the transaction up from the context.
type Transactor struct {
	pool      *pgxpool.Pool
	tracer    trace.Tracer
	commits   metric.Int64Counter
	rollbacks metric.Int64Counter
}

// NewTransactor creates a Transactor.
func NewTransactor(pool *pgxpool.Pool, tp trace.TracerProvider, mp metric.MeterProvider) (*Transactor, error) {
	meter := mp.Meter("storefront.postgres")
	commits, err := meter.Int64Counter("storefront.postgres.tx.commits",
		metric.WithDescription("Committed transactions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create commits counter")
	}
	rollbacks, err := meter.Int64Counter("storefront.postgres.tx.rollbacks",
		metric.WithDescription("Rolled back transactions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rollbacks counter")
	}
	return &Transactor{
		pool:      pool,
		tracer:    tp.Tracer("storefront.postgres"),
		commits:   commits,
		rollbacks: rollbacks,
	}, nil
}

// InTx runs fn in a transaction. A call made while ctx already carries a
// transaction joins it instead of starting a new one.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) (rerr error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, "postgres.InTx", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		t.rollbacks.Add(ctx, 1)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		t.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("commit_failed", true)))
		return errors.Wrap(err, "commit tx")
	}
	t.commits.Add(ctx, 1)
	return nil
}
