//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/domain/refund"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
	"github.com/xenking/beauty-shop/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("shop"),
		tcpostgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Printf("start postgres: %v", err)
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("connection string: %v", err)
		return 1
	}
	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}
	return m.Run()
}

type services struct {
	catalog *catalog.Service
	stock   *inventory.Service
	orders  *order.Service
	refunds *refund.Service
	coupons *coupon.Service
}

func newServices(t *testing.T) services {
	t.Helper()
	ledger, err := inventory.NewLedger(metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	db := postgres.NewDB(pool, 10*time.Second)
	cat := catalog.NewService(postgres.NewCatalogRepository(pool))
	coupons := coupon.NewService(postgres.NewCouponRepository(pool))
	quoter := shipping.NewCalculator(postgres.NewShippingRepository(pool))
	return services{
		catalog: cat,
		stock:   inventory.NewService(db, postgres.NewStockRepository(pool), ledger),
		orders:  order.NewService(db, postgres.NewOrderRepository(pool), cat, coupons, quoter, ledger),
		refunds: refund.NewService(db, postgres.NewRefundRepository(pool), ledger),
		coupons: coupons,
	}
}

// createProduct stores a product with one variant holding qty units.
func createProduct(t *testing.T, s services, name, sku string, price string, qty int) catalog.Variant {
	t.Helper()
	p := &catalog.Product{
		Name:     name,
		IsActive: true,
		Variants: []catalog.Variant{{
			SKU:      sku,
			Name:     "Default",
			Price:    decimal.RequireFromString(price),
			IsActive: true,
			Stock:    inventory.Stock{Quantity: qty},
		}},
	}
	require.NoError(t, s.catalog.CreateProduct(context.Background(), p))
	return p.Variants[0]
}

func TestStock_ConcurrentReservationsNeverOversell(t *testing.T) {
	s := newServices(t)
	v := createProduct(t, s, "Matte Lipstick", "IT-LIP-1", "19.90", 10)

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.stock.Reserve(context.Background(), v.ID, 1); err == nil {
				ok.Add(1)
			} else {
				var insufficient *inventory.InsufficientStockError
				assert.True(t, errors.As(err, &insufficient), "unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	got, err := s.stock.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Reserved)
	assert.Zero(t, got.Available())
}

func TestOrder_PlacePayCancel(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	v := createProduct(t, s, "Hydra Serum", "IT-SER-1", "40.00", 10)

	res, err := s.orders.Place(ctx, order.PlaceOrderRequest{
		Items:      []order.LineRequest{{VariantID: v.ID, Quantity: 3}},
		GuestEmail: "guest@example.com",
		Shipping:   order.Address{City: "Lima"},
	})
	require.NoError(t, err)
	stock, err := s.stock.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock.Reserved)

	_, err = s.orders.MarkPaid(ctx, res.Order.ID, "pay-1")
	require.NoError(t, err)
	stock, err = s.stock.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stock.Quantity)
	assert.Zero(t, stock.Reserved)

	cancelled, err := s.orders.Cancel(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	stock, err = s.stock.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stock.Quantity)

	stored, err := s.orders.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", stored.PaymentTransactionID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Hydra Serum", stored.Items[0].ProductName)

	_, err = s.orders.Cancel(ctx, res.Order.ID)
	var illegal *order.IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))
}

func TestOrder_CouponUsageLimit(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	v := createProduct(t, s, "Blush Duo", "IT-BLU-1", "25.00", 10)
	require.NoError(t, s.coupons.Create(ctx, &coupon.Rule{
		Code:         "it-once",
		DiscountType: coupon.DiscountFixed,
		Value:        decimal.NewFromInt(5),
		MaxUses:      1,
		Active:       true,
	}))

	req := order.PlaceOrderRequest{
		Items:      []order.LineRequest{{VariantID: v.ID, Quantity: 1}},
		CouponCode: "IT-ONCE",
		GuestEmail: "guest@example.com",
	}
	res, err := s.orders.Place(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(res.Order.DiscountAmount))

	_, err = s.orders.Place(ctx, req)
	assert.ErrorIs(t, err, coupon.ErrCouponUsageLimitReached)

	stock, err := s.stock.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Reserved, "failed checkout reserves nothing")
}

func TestRefund_TwoApprovalsRefundOrder(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	a := createProduct(t, s, "Eye Palette", "IT-EYE-1", "30.00", 10)
	b := createProduct(t, s, "Brow Gel", "IT-BRO-1", "12.00", 10)

	res, err := s.orders.Place(ctx, order.PlaceOrderRequest{
		Items: []order.LineRequest{
			{VariantID: a.ID, Quantity: 2},
			{VariantID: b.ID, Quantity: 3},
		},
		GuestEmail: "guest@example.com",
	})
	require.NoError(t, err)
	o := res.Order
	_, err = s.orders.MarkPaid(ctx, o.ID, "pay-2")
	require.NoError(t, err)

	first, err := s.refunds.Create(ctx, refund.CreateRequest{
		OrderID: o.ID,
		Items:   []refund.Item{{OrderItemID: o.Items[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)
	second, err := s.refunds.Create(ctx, refund.CreateRequest{
		OrderID: o.ID,
		Items:   []refund.Item{{OrderItemID: o.Items[1].ID, Quantity: 3}},
	})
	require.NoError(t, err)

	_, err = s.refunds.Approve(ctx, first.ID)
	require.NoError(t, err)
	stored, err := s.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyRefunded, stored.Status)

	_, err = s.refunds.Approve(ctx, second.ID)
	require.NoError(t, err)
	stored, err = s.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, stored.Status)

	for _, v := range []catalog.Variant{a, b} {
		stock, err := s.stock.Get(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, stock.Quantity, v.SKU)
	}

	_, err = s.refunds.Approve(ctx, first.ID)
	var illegal *refund.IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))

	list, err := s.refunds.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Len(t, list[0].Items, 1)
}

func TestCatalog_ListProductsFilters(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	require.NoError(t, s.catalog.CreateBrand(ctx, &catalog.Brand{Name: "Lumière Labs", IsActive: true}))

	p := &catalog.Product{
		Name:     "Lumière Glow Drops",
		Brand:    &catalog.Brand{Slug: "lumiere-labs"},
		IsActive: true,
		Variants: []catalog.Variant{
			{SKU: "IT-GLO-1", Name: "Gold", Price: decimal.RequireFromString("50"), SalePrice: ptr(decimal.RequireFromString("35")), IsActive: true, Stock: inventory.Stock{Quantity: 4}},
			{SKU: "IT-GLO-2", Name: "Rose", Price: decimal.RequireFromString("45"), IsActive: true},
		},
	}
	require.NoError(t, s.catalog.CreateProduct(ctx, p))
	assert.Equal(t, "lumiere-glow-drops", p.Slug)

	got, err := s.catalog.ListProducts(ctx, catalog.ProductFilter{BrandSlug: "lumiere-labs", OnSale: true, InStock: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Variants, 2)
	assert.True(t, decimal.RequireFromString("35").Equal(*got[0].BasePrice()))

	got, err = s.catalog.ListProducts(ctx, catalog.ProductFilter{Search: "glow drops", MinPrice: ptr(decimal.RequireFromString("40"))})
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.catalog.CreateProduct(ctx, &catalog.Product{Name: "Lumière Glow Drops", IsActive: true})
	assert.ErrorIs(t, err, catalog.ErrConflict)
}

func TestCatalog_VariantChangesKeepOrderSnapshot(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	require.NoError(t, s.catalog.CreateAttributeType(ctx, &catalog.AttributeType{Name: "IT Finish"}))

	v := createProduct(t, s, "Velvet Lip Tint", "IT-TIN-1", "22.00", 6)
	res, err := s.orders.Place(ctx, order.PlaceOrderRequest{
		Items:      []order.LineRequest{{VariantID: v.ID, Quantity: 2}},
		GuestEmail: "guest@example.com",
		Shipping:   order.Address{City: "Cali"},
	})
	require.NoError(t, err)

	updated, err := s.catalog.UpdateVariant(ctx, v.ID, catalog.VariantPatch{
		SKU:        ptr("IT-TIN-1B"),
		Name:       ptr("Berry"),
		Price:      ptr(decimal.RequireFromString("30.00")),
		Attributes: []catalog.Attribute{{Type: "it-finish", Value: "Matte"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "IT-TIN-1B", updated.SKU)
	assert.True(t, decimal.RequireFromString("30").Equal(updated.Price))
	require.Len(t, updated.Attributes, 1)
	assert.Equal(t, catalog.Attribute{Type: "it-finish", Name: "IT Finish", Value: "Matte"}, updated.Attributes[0])
	assert.Equal(t, 2, updated.Stock.Reserved, "stock is not touched by variant updates")

	_, err = s.catalog.UpdateVariant(ctx, v.ID, catalog.VariantPatch{
		Attributes: []catalog.Attribute{{Type: "it-unknown", Value: "x"}},
	})
	require.Error(t, err)
	got, err := s.catalog.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, got.Attributes, 1, "failed update rolls back")

	require.NoError(t, s.catalog.DeleteVariant(ctx, v.ID))
	_, err = s.catalog.GetVariant(ctx, v.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = s.stock.Get(ctx, v.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.ErrorIs(t, s.catalog.DeleteVariant(ctx, v.ID), catalog.ErrNotFound)

	stored, err := s.orders.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	item := stored.Items[0]
	assert.Empty(t, item.VariantID)
	assert.Equal(t, "IT-TIN-1", item.SKU)
	assert.Equal(t, "Default", item.VariantName)
	assert.Equal(t, "Velvet Lip Tint", item.ProductName)
	assert.True(t, decimal.RequireFromString("22").Equal(item.UnitPrice))

	cancelled, err := s.orders.Cancel(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestCatalog_UpdateAndDeleteProduct(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	require.NoError(t, s.catalog.CreateBrand(ctx, &catalog.Brand{Name: "IT Flora", IsActive: true}))
	require.NoError(t, s.catalog.CreateCategory(ctx, &catalog.Category{Name: "IT Skincare", IsActive: true}))

	v := createProduct(t, s, "Rose Mist", "IT-MIS-1", "18.00", 3)
	p, err := s.catalog.UpdateProduct(ctx, "rose-mist", catalog.ProductPatch{
		Name:       ptr("Rose Facial Mist"),
		Slug:       ptr("rose-facial-mist"),
		Brand:      ptr("it-flora"),
		Categories: []string{"it-skincare"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rose-facial-mist", p.Slug)
	require.NotNil(t, p.Brand)
	assert.Equal(t, "it-flora", p.Brand.Slug)
	require.Len(t, p.Categories, 1)
	assert.Equal(t, "it-skincare", p.Categories[0].Slug)

	p, err = s.catalog.UpdateProduct(ctx, "rose-facial-mist", catalog.ProductPatch{Brand: ptr(""), Categories: []string{}})
	require.NoError(t, err)
	assert.Nil(t, p.Brand)
	assert.Empty(t, p.Categories)

	require.NoError(t, s.catalog.DeleteProduct(ctx, "rose-facial-mist"))
	_, err = s.stock.Get(ctx, v.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.ErrorIs(t, s.catalog.DeleteProduct(ctx, "rose-facial-mist"), catalog.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
