package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
	"github.com/xenking/beauty-shop/internal/events"
)

type couponUsage struct {
	uses    int
	maxUses int
}

// memDB is an in-memory UnitOfWork and Repository. Transactions are
// serialized by mu and roll back to a snapshot on error.
type memDB struct {
	mu        sync.Mutex
	orders    map[string]Order
	stocks    map[string]inventory.Stock
	coupons   map[string]couponUsage
	insertErr error
}

func newMemDB(stocks ...inventory.Stock) *memDB {
	db := &memDB{
		orders:  make(map[string]Order),
		stocks:  make(map[string]inventory.Stock),
		coupons: make(map[string]couponUsage),
	}
	for _, s := range stocks {
		db.stocks[s.VariantID] = s
	}
	return db
}

func cloneOrder(o Order) Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (db *memDB) InOrderTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	orders := make(map[string]Order, len(db.orders))
	for k, v := range db.orders {
		orders[k] = cloneOrder(v)
	}
	stocks := make(map[string]inventory.Stock, len(db.stocks))
	for k, v := range db.stocks {
		stocks[k] = v
	}
	coupons := make(map[string]couponUsage, len(db.coupons))
	for k, v := range db.coupons {
		coupons[k] = v
	}

	if err := fn(ctx, (*memTx)(db)); err != nil {
		db.orders, db.stocks, db.coupons = orders, stocks, coupons
		return err
	}
	return nil
}

func (db *memDB) Get(_ context.Context, id string) (*Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (db *memDB) List(_ context.Context, f Filter) ([]Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Order
	for _, o := range db.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (db *memDB) stock(variantID string) inventory.Stock {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.stocks[variantID]
}

func (db *memDB) put(o Order) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.orders[o.ID] = cloneOrder(o)
}

// memTx is memDB seen from inside a transaction; the lock is already held.
type memTx memDB

func (tx *memTx) LockStock(_ context.Context, variantID string) (*inventory.Stock, error) {
	s, ok := tx.stocks[variantID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return &s, nil
}

func (tx *memTx) SaveStock(_ context.Context, s *inventory.Stock) error {
	tx.stocks[s.VariantID] = *s
	return nil
}

func (tx *memTx) Redeem(_ context.Context, code string) error {
	c, ok := tx.coupons[code]
	if !ok {
		return coupon.ErrInvalidCoupon
	}
	if c.maxUses > 0 && c.uses >= c.maxUses {
		return coupon.ErrCouponUsageLimitReached
	}
	c.uses++
	tx.coupons[code] = c
	return nil
}

func (tx *memTx) LockOrder(_ context.Context, id string) (*Order, error) {
	o, ok := tx.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *Order) error {
	if tx.insertErr != nil {
		return tx.insertErr
	}
	tx.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (tx *memTx) UpdateOrderStatus(_ context.Context, id string, status Status, at time.Time) error {
	o, ok := tx.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	tx.orders[id] = o
	return nil
}

func (tx *memTx) SetPaymentTransaction(_ context.Context, id, transactionID string) error {
	o, ok := tx.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentTransactionID = transactionID
	tx.orders[id] = o
	return nil
}

type mockVariants struct {
	byID map[string]catalog.Variant
	err  error
}

func (m *mockVariants) GetVariants(_ context.Context, ids []string) ([]catalog.Variant, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Variant
	for _, id := range ids {
		if v, ok := m.byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func newVariants(vs ...catalog.Variant) *mockVariants {
	m := &mockVariants{byID: make(map[string]catalog.Variant, len(vs))}
	for _, v := range vs {
		m.byID[v.ID] = v
	}
	return m
}

type mockCouponValidator struct {
	discount *coupon.Discount
	err      error
}

func (m *mockCouponValidator) Validate(_ context.Context, code string, _ decimal.Decimal) (*coupon.Discount, error) {
	if m.err != nil {
		return nil, m.err
	}
	d := *m.discount
	d.Code = code
	return &d, nil
}

type fixedQuoter struct {
	price decimal.Decimal
}

func (q fixedQuoter) Calculate(context.Context, string, string, decimal.Decimal) (*shipping.Quote, error) {
	return &shipping.Quote{Price: q.price, Message: "Shipping to test"}, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
