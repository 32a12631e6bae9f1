package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/domain/txn"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// backend is the storage the domain services run on.
type backend struct {
	tx       txn.Transactor
	variants inventory.Repository
	coupons  coupon.Repository
	orders   order.Repository
	tickets  ticket.Repository
	keys     auth.Repository
	close    func()
}

// services are the wired domain services.
type services struct {
	orders  *order.Service
	coupons *coupon.Service
	tickets *ticket.Service
}

func newServices(b *backend) *services {
	tickets := ticket.NewService(b.tx, b.tickets)
	tickets.Register(ticket.TypeCouponApproval, coupon.NewApprovalHandler(b.coupons))
	tickets.Register(ticket.TypeRefundRequest, order.NewRefundHandler(b.orders))

	return &services{
		tickets: tickets,
		coupons: coupon.NewService(b.tx, b.coupons, tickets),
		orders: order.NewService(b.tx, b.orders,
			inventory.NewLedger(b.variants),
			coupon.NewRepoValidator(b.coupons),
			tickets,
		),
	}
}

func openPostgres(ctx context.Context, cfg *Config, tp trace.TracerProvider, mp metric.MeterProvider, hs *health.Health) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	tx, err := postgres.NewTransactor(pool, tp, mp)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create transactor")
	}

	hs.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	hs.AddReadinessCheck("postgres_pool", time.Second, health.PoolSaturationCheck(func() (int32, int32) {
		s := pool.Stat()
		return s.AcquiredConns(), s.MaxConns()
	}, 0.95))

	return &backend{
		tx:       tx,
		variants: postgres.NewVariantRepository(pool),
		coupons:  postgres.NewCouponRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		tickets:  postgres.NewTicketRepository(pool),
		keys:     postgres.NewAPIKeyRepository(pool),
		close:    pool.Close,
	}, nil
}

// openMemory builds an in-process store loaded with the demo catalog, one
// API key per role and pending demo coupons.
func openMemory(ctx context.Context, pepper []byte) (*backend, error) {
	store := memory.New()

	products, err := seed.ParseCatalog(db.Catalog)
	if err != nil {
		return nil, err
	}
	if err := seed.LoadCatalog(ctx, store.Variants(), products); err != nil {
		return nil, errors.Wrap(err, "seed catalog")
	}
	if err := seed.LoadKeys(ctx, store.APIKeys(), pepper, seed.DemoKeys()); err != nil {
		return nil, errors.Wrap(err, "seed api keys")
	}

	b := &backend{
		tx:       store,
		variants: store.Variants(),
		coupons:  store.Coupons(),
		orders:   store.Orders(),
		tickets:  store.Tickets(),
		keys:     store.APIKeys(),
		close:    func() {},
	}
	if _, err := seed.SubmitCoupons(ctx, newServices(b).coupons, seed.DemoCoupons("pm-1")); err != nil {
		return nil, errors.Wrap(err, "seed coupons")
	}
	return b, nil
}

// newRouter mounts health and API routes behind the middleware chain.
func newRouter(
	ctx context.Context,
	cfg *Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	hs *health.Health,
	svc *services,
	keys *auth.KeyResolver,
) http.Handler {
	r := chi.NewRouter()
	// Inside the router so the matched route pattern is known.
	r.Use(
		httpmiddleware.Instrument("storefront-api", tp, mp),
		httpmiddleware.LogRequests(),
	)
	hs.Routes(r)
	r.Route("/api/v1", func(r chi.Router) {
		handler.NewHandler(svc.orders, svc.coupons, svc.tickets).Routes(r, keys)
	})

	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", handler.APIKeyHeader, handler.IdempotencyKeyHeader, "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		}),
	)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)
	pepper := []byte(cfg.APIKeyPepper)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var (
		b   *backend
		err error
	)
	switch cfg.Storage {
	case StorageMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		b, err = openMemory(ctx, pepper)
	default:
		b, err = openPostgres(ctx, cfg, m.TracerProvider(), m.MeterProvider(), healthSvc)
	}
	if err != nil {
		return err
	}
	defer b.close()

	keys := auth.NewKeyResolver(b.keys, pepper)
	router := newRouter(ctx, cfg, m.TracerProvider(), m.MeterProvider(), healthSvc, newServices(b), keys)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           router,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
