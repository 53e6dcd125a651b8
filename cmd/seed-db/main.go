// Command seed-db fills a development database with a small catalog, stock,
// coupons, shipping rates and API keys. Running it twice is harmless.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/auth"
	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
	"github.com/xenking/beauty-shop/internal/storage/postgres"
)

type keys struct {
	admin  string
	orders string
	pepper string
}

func main() {
	var (
		databaseURL string
		k           keys
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&k.admin, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&k.orders, "orders-key", "", "storefront API key to seed (or SHOP_SEED_ORDERS_KEY env)")
	flag.StringVar(&k.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if k.admin == "" {
		k.admin = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if k.orders == "" {
		k.orders = os.Getenv("SHOP_SEED_ORDERS_KEY")
	}
	if k.admin == "" || k.orders == "" {
		slog.Error("API keys are required: set --admin-key and --orders-key")
		os.Exit(1)
	}
	if k.pepper == "" {
		k.pepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, k); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, k keys) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, catalog.NewService(postgres.NewCatalogRepository(pool))); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, coupon.NewService(postgres.NewCouponRepository(pool))); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedShipping(ctx, shipping.NewCalculator(postgres.NewShippingRepository(pool))); err != nil {
		return errors.Wrap(err, "seed shipping rates")
	}
	if err := seedAPIKeys(ctx, pool, k); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

// skipExisting turns "already exists" errors into a log line.
func skipExisting(err error, kind, name string, exists ...error) error {
	for _, e := range exists {
		if errors.Is(err, e) {
			slog.Info("already present", slog.String("kind", kind), slog.String("name", name))
			return nil
		}
	}
	if err != nil {
		return errors.Wrapf(err, "create %s %s", kind, name)
	}
	slog.Info("created", slog.String("kind", kind), slog.String("name", name))
	return nil
}

func seedCatalog(ctx context.Context, svc *catalog.Service) error {
	for _, b := range brands {
		if err := skipExisting(svc.CreateBrand(ctx, &b), "brand", b.Name, catalog.ErrConflict); err != nil {
			return err
		}
	}
	for _, c := range categories {
		if err := skipExisting(svc.CreateCategory(ctx, &c), "category", c.Name, catalog.ErrConflict); err != nil {
			return err
		}
	}
	for _, p := range products() {
		if err := skipExisting(svc.CreateProduct(ctx, &p), "product", p.Name, catalog.ErrConflict); err != nil {
			return err
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, svc *coupon.Service) error {
	for _, c := range coupons() {
		if err := skipExisting(svc.Create(ctx, &c), "coupon", c.Code, coupon.ErrCouponExists); err != nil {
			return err
		}
	}
	return nil
}

func seedShipping(ctx context.Context, calc *shipping.Calculator) error {
	existing, err := calc.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list rates")
	}
	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		have[r.Name] = true
	}
	for _, r := range shippingRates() {
		if have[r.Name] {
			slog.Info("already present", slog.String("kind", "shipping rate"), slog.String("name", r.Name))
			continue
		}
		if err := skipExisting(calc.Create(ctx, &r), "shipping rate", r.Name, shipping.ErrDefaultExists); err != nil {
			return err
		}
	}
	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, k keys) error {
	repo := postgres.NewAPIKeyRepository(pool)
	for _, key := range []auth.APIKeyInfo{
		{Name: "Admin", KeyHash: auth.Hash([]byte(k.pepper), k.admin), Scopes: []string{auth.ScopeAdmin}},
		{Name: "Storefront", KeyHash: auth.Hash([]byte(k.pepper), k.orders), Scopes: []string{auth.ScopeOrders}},
	} {
		key.ID = uuid.NewString()
		if err := repo.Save(ctx, &key); err != nil {
			return err
		}
		slog.Info("upserted API key", slog.String("name", key.Name))
	}
	return nil
}
