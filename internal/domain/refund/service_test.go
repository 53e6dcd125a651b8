package refund

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/events"
)

// memDB is an in-memory UnitOfWork and Repository with snapshot rollback.
type memDB struct {
	mu      sync.Mutex
	orders  map[string]order.Order
	refunds map[string]Refund
	stocks  map[string]inventory.Stock
	saveErr error
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func cloneRefund(r Refund) Refund {
	r.Items = slices.Clone(r.Items)
	return r
}

func (db *memDB) InRefundTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	orders := make(map[string]order.Order, len(db.orders))
	for k, v := range db.orders {
		orders[k] = cloneOrder(v)
	}
	refunds := make(map[string]Refund, len(db.refunds))
	for k, v := range db.refunds {
		refunds[k] = cloneRefund(v)
	}
	stocks := make(map[string]inventory.Stock, len(db.stocks))
	for k, v := range db.stocks {
		stocks[k] = v
	}

	if err := fn(ctx, (*memTx)(db)); err != nil {
		db.orders, db.refunds, db.stocks = orders, refunds, stocks
		return err
	}
	return nil
}

func (db *memDB) Get(_ context.Context, id string) (*Refund, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = cloneRefund(r)
	return &r, nil
}

func (db *memDB) ListByOrder(_ context.Context, orderID string) ([]Refund, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Refund
	for _, r := range db.refunds {
		if r.OrderID == orderID {
			out = append(out, cloneRefund(r))
		}
	}
	return out, nil
}

func (db *memDB) order(id string) order.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	return cloneOrder(db.orders[id])
}

func (db *memDB) stock(variantID string) inventory.Stock {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.stocks[variantID]
}

type memTx memDB

func (tx *memTx) LockStock(_ context.Context, variantID string) (*inventory.Stock, error) {
	s, ok := tx.stocks[variantID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return &s, nil
}

func (tx *memTx) SaveStock(_ context.Context, s *inventory.Stock) error {
	if tx.saveErr != nil {
		return tx.saveErr
	}
	tx.stocks[s.VariantID] = *s
	return nil
}

func (tx *memTx) LockRefund(_ context.Context, id string) (*Refund, error) {
	r, ok := tx.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = cloneRefund(r)
	return &r, nil
}

func (tx *memTx) LockOrder(_ context.Context, id string) (*order.Order, error) {
	o, ok := tx.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (tx *memTx) InsertRefund(_ context.Context, r *Refund) error {
	tx.refunds[r.ID] = cloneRefund(*r)
	return nil
}

func (tx *memTx) SetRefundStatus(_ context.Context, id string, status Status, processedAt time.Time) error {
	r := tx.refunds[id]
	r.Status = status
	r.ProcessedAt = &processedAt
	tx.refunds[id] = r
	return nil
}

func (tx *memTx) AddRefundedQuantity(_ context.Context, orderItemID string, qty int) error {
	for id, o := range tx.orders {
		for i := range o.Items {
			if o.Items[i].ID == orderItemID {
				o.Items[i].RefundedQuantity += qty
				tx.orders[id] = o
				return nil
			}
		}
	}
	return order.ErrNotFound
}

func (tx *memTx) UpdateOrderStatus(_ context.Context, id string, status order.Status, at time.Time) error {
	o := tx.orders[id]
	o.Status = status
	o.UpdatedAt = at
	tx.orders[id] = o
	return nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.events = append(p.events, evs...)
	return nil
}

// newFixture seeds a delivered order with a 2-unit blush line and a 3-unit
// mascara line, both sold out of 10.
func newFixture(t *testing.T, status order.Status) (*Service, *memDB, *recordingPublisher) {
	t.Helper()
	db := &memDB{
		orders: map[string]order.Order{
			"order-1": {
				ID:     "order-1",
				Status: status,
				Items: []order.Item{
					{ID: "item-blush", VariantID: "v-blush", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
					{ID: "item-mascara", VariantID: "v-mascara", UnitPrice: decimal.RequireFromString("20.00"), Quantity: 3},
				},
			},
		},
		refunds: make(map[string]Refund),
		stocks: map[string]inventory.Stock{
			"v-blush":   {VariantID: "v-blush", Quantity: 8, LowStockThreshold: 5},
			"v-mascara": {VariantID: "v-mascara", Quantity: 7, LowStockThreshold: 5},
		},
	}
	ledger, err := inventory.NewLedger(metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	pub := &recordingPublisher{}
	return NewService(db, db, ledger, WithPublisher(pub)), db, pub
}

func TestCreate(t *testing.T) {
	svc, db, _ := newFixture(t, order.StatusDelivered)

	r, err := svc.Create(context.Background(), CreateRequest{
		OrderID: "order-1",
		Reason:  " damaged ",
		Items: []Item{
			{OrderItemID: "item-mascara", Quantity: 1},
			{OrderItemID: "item-mascara", Quantity: 1},
			{OrderItemID: "item-blush", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "damaged", r.Reason)
	require.Len(t, r.Items, 2)
	assert.Equal(t, 2, r.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("52.50").Equal(r.Amount), r.Amount.String())

	stored, err := svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Amount, stored.Amount)

	o := db.order("order-1")
	assert.Zero(t, o.Items[1].RefundedQuantity, "create does not touch the order")
	assert.Equal(t, 7, db.stock("v-mascara").Quantity)
}

func TestCreate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		status order.Status
		items  []Item
		check  func(t *testing.T, err error)
	}{
		{
			name:   "no items",
			status: order.StatusDelivered,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyItems)
			},
		},
		{
			name:   "zero quantity",
			status: order.StatusDelivered,
			items:  []Item{{OrderItemID: "item-blush"}},
			check: func(t *testing.T, err error) {
				var e *InvalidQuantityError
				assert.True(t, errors.As(err, &e))
			},
		},
		{
			name:   "foreign item",
			status: order.StatusDelivered,
			items:  []Item{{OrderItemID: "item-other", Quantity: 1}},
			check: func(t *testing.T, err error) {
				var e *ItemNotInOrderError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "item-other", e.OrderItemID)
			},
		},
		{
			name:   "over refund",
			status: order.StatusDelivered,
			items:  []Item{{OrderItemID: "item-blush", Quantity: 3}},
			check: func(t *testing.T, err error) {
				var e *OverRefundError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 3, e.Requested)
				assert.Equal(t, 2, e.Refundable)
			},
		},
		{
			name:   "unpaid order",
			status: order.StatusPendingPayment,
			items:  []Item{{OrderItemID: "item-blush", Quantity: 1}},
			check: func(t *testing.T, err error) {
				var e *OrderNotRefundableError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, order.StatusPendingPayment, e.Status)
			},
		},
		{
			name:   "cancelled order",
			status: order.StatusCancelled,
			items:  []Item{{OrderItemID: "item-blush", Quantity: 1}},
			check: func(t *testing.T, err error) {
				var e *OrderNotRefundableError
				assert.True(t, errors.As(err, &e))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _ := newFixture(t, tt.status)
			_, err := svc.Create(context.Background(), CreateRequest{OrderID: "order-1", Items: tt.items})
			require.Error(t, err)
			tt.check(t, err)
			assert.Empty(t, db.refunds)
		})
	}
}

func TestApprove_TwoRefundsFullyRefundOrder(t *testing.T) {
	svc, db, pub := newFixture(t, order.StatusDelivered)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{{OrderItemID: "item-blush", Quantity: 2}}})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{{OrderItemID: "item-mascara", Quantity: 3}}})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ProcessedAt)
	assert.Equal(t, order.StatusPartiallyRefunded, db.order("order-1").Status)
	assert.Equal(t, 10, db.stock("v-blush").Quantity)

	_, err = svc.Approve(ctx, second.ID)
	require.NoError(t, err)

	o := db.order("order-1")
	assert.Equal(t, order.StatusRefunded, o.Status)
	assert.Equal(t, 2, o.Items[0].RefundedQuantity)
	assert.Equal(t, 3, o.Items[1].RefundedQuantity)
	assert.Equal(t, 10, db.stock("v-mascara").Quantity)

	var types []string
	for _, e := range pub.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		events.TypeRefundApproved, events.TypeOrderStatusChanged,
		events.TypeRefundApproved, events.TypeOrderStatusChanged,
	}, types)
}

func TestApprove_Twice(t *testing.T) {
	svc, db, _ := newFixture(t, order.StatusPaid)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{{OrderItemID: "item-blush", Quantity: 1}}})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, r.ID)
	require.NoError(t, err)
	blush := db.stock("v-blush")

	_, err = svc.Approve(ctx, r.ID)
	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal), "got %v", err)
	assert.Equal(t, StatusApproved, illegal.From)

	assert.Equal(t, blush, db.stock("v-blush"))
	assert.Equal(t, 1, db.order("order-1").Items[0].RefundedQuantity)
}

func TestApprove_RechecksOverRefund(t *testing.T) {
	svc, db, _ := newFixture(t, order.StatusDelivered)
	ctx := context.Background()

	// Both pending refunds fit on their own but not together.
	a, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{{OrderItemID: "item-mascara", Quantity: 2}}})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{{OrderItemID: "item-mascara", Quantity: 2}}})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b.ID)
	var over *OverRefundError
	require.True(t, errors.As(err, &over), "got %v", err)
	assert.Equal(t, 1, over.Refundable)

	stored, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 9, db.stock("v-mascara").Quantity)
}

func TestApprove_StockFailureRollsBack(t *testing.T) {
	svc, db, pub := newFixture(t, order.StatusDelivered)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{
		{OrderItemID: "item-blush", Quantity: 1},
		{OrderItemID: "item-mascara", Quantity: 1},
	}})
	require.NoError(t, err)

	db.saveErr = errors.New("disk full")
	_, err = svc.Approve(ctx, r.ID)
	require.Error(t, err)

	o := db.order("order-1")
	assert.Equal(t, order.StatusDelivered, o.Status)
	assert.Zero(t, o.Items[0].RefundedQuantity)
	assert.Equal(t, 8, db.stock("v-blush").Quantity)
	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, pub.events)
}

func TestReject(t *testing.T) {
	svc, db, _ := newFixture(t, order.StatusDelivered)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateRequest{OrderID: "order-1", Items: []Item{{OrderItemID: "item-blush", Quantity: 1}}})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, 8, db.stock("v-blush").Quantity)
	assert.Equal(t, order.StatusDelivered, db.order("order-1").Status)

	_, err = svc.Approve(ctx, r.ID)
	var illegal *IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))

	list, err := svc.ListByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApprove_NotFound(t *testing.T) {
	svc, _, _ := newFixture(t, order.StatusDelivered)
	_, err := svc.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
