package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKeyPepper string
		couponAuthor string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to a catalog JSON file (embedded demo catalog if empty)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.StringVar(&couponAuthor, "coupon-author", "pm-1", "actor id recorded as creator of the demo coupons")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, catalogFile, []byte(apiKeyPepper), couponAuthor); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, databaseURL, catalogFile string, pepper []byte, couponAuthor string) error {
	lg := zctx.From(ctx)

	catalog := db.Catalog
	if catalogFile != "" {
		data, err := os.ReadFile(catalogFile)
		if err != nil {
			return errors.Wrap(err, "read catalog file")
		}
		catalog = data
	}
	products, err := seed.ParseCatalog(catalog)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seed.LoadCatalog(ctx, postgres.NewVariantRepository(pool), products); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seed.LoadKeys(ctx, postgres.NewAPIKeyRepository(pool), pepper, seed.DemoKeys()); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	tx, err := postgres.NewTransactor(pool, otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		return errors.Wrap(err, "create transactor")
	}
	tickets := ticket.NewService(tx, postgres.NewTicketRepository(pool))
	registry := coupon.NewService(tx, postgres.NewCouponRepository(pool), tickets)

	n, err := seed.SubmitCoupons(ctx, registry, seed.DemoCoupons(couponAuthor))
	if err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	lg.Info("Demo coupons submitted for approval", zap.Int("count", n))
	return nil
}
