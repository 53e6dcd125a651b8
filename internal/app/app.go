package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/beauty-shop/internal/domain/auth"
	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/domain/refund"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
	"github.com/xenking/beauty-shop/internal/events"
	"github.com/xenking/beauty-shop/internal/events/kafkapub"
	"github.com/xenking/beauty-shop/internal/handler"
	"github.com/xenking/beauty-shop/internal/storage/postgres"
	"github.com/xenking/beauty-shop/pkg/health"
	"github.com/xenking/beauty-shop/pkg/httpmiddleware"
	"github.com/xenking/beauty-shop/pkg/idempotency"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Check{Name: "postgres", Probe: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.Add(health.Check{Name: "goroutines", Probe: health.Liveness, Func: health.GoroutineLimit(10000)})
	healthSvc.Add(health.Check{Name: "gc_pause", Probe: health.Liveness, Func: health.GCPauseLimit(time.Second)})

	var (
		handlerOpts []handler.Option
		limiter     httpmiddleware.Limiter
		memLimiter  *httpmiddleware.MemoryLimiter
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		healthSvc.Add(health.Check{
			Name:    "redis",
			Probe:   health.Readiness,
			Timeout: 2 * time.Second,
			Func: health.PingCheck(health.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})),
		})
		handlerOpts = append(handlerOpts, handler.WithIdempotency(idempotency.NewStore(rdb, cfg.Redis.IdempotencyTTL)))
		lg.Info("Idempotency keys enabled", zap.Duration("ttl", cfg.Redis.IdempotencyTTL))
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
	}
	if limiter == nil {
		memLimiter = httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		limiter = memLimiter
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafkapub.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = kp
		lg.Info("Publishing events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Repositories.
	db := postgres.NewDB(pool, cfg.Tx.Timeout)
	catalogRepo := postgres.NewCatalogRepository(pool)
	stockRepo := postgres.NewStockRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	refundRepo := postgres.NewRefundRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	shippingRepo := postgres.NewShippingRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	ledger, err := inventory.NewLedger(m.MeterProvider().Meter("shop/inventory"))
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}
	tp := m.TracerProvider()
	catalogService := catalog.NewService(catalogRepo)
	couponService := coupon.NewService(couponRepo)
	shippingCalc := shipping.NewCalculator(shippingRepo)
	inventoryService := inventory.NewService(db, stockRepo, ledger,
		inventory.WithPublisher(publisher),
		inventory.WithTracerProvider(tp),
	)
	orderService := order.NewService(db, orderRepo, catalogService, couponService, shippingCalc, ledger,
		order.WithPublisher(publisher),
		order.WithTracerProvider(tp),
	)
	refundService := refund.NewService(db, refundRepo, ledger,
		refund.WithPublisher(publisher),
		refund.WithTracerProvider(tp),
	)

	// HTTP handlers.
	h := handler.NewHandler(handler.Services{
		Catalog:   catalogService,
		Inventory: inventoryService,
		Orders:    orderService,
		Refunds:   refundService,
		Coupons:   couponService,
		Shipping:  shippingCalc,
	}, auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)), handlerOpts...)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveHandler)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyHandler)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Methods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				Headers:     []string{"Content-Type", "Authorization", "api_key", handler.IdempotencyKeyHeader},
				Expose:      []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      24 * time.Hour,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Limiter:    limiter,
				TrustProxy: cfg.RateLimit.TrustProxy,
			}),
			httpmiddleware.Instrument("beauty-shop", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return healthSvc.Run(gctx, 10*time.Second) })
	if memLimiter != nil {
		g.Go(func() error { return memLimiter.Run(gctx) })
	}
	healthSvc.SetServing(true)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetServing(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
