package inventory

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/beauty-shop/internal/events"
)

// memStore is an in-memory StockStore. A transaction holds the store mutex
// for its whole duration, which is what a row lock gives per variant.
type memStore struct {
	mu      sync.Mutex
	stocks  map[string]Stock
	saveErr error
}

func newMemStore(stocks ...Stock) *memStore {
	m := &memStore{stocks: make(map[string]Stock, len(stocks))}
	for _, s := range stocks {
		m.stocks[s.VariantID] = s
	}
	return m
}

func (m *memStore) InStockTx(ctx context.Context, fn func(context.Context, StockStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]Stock, len(m.stocks))
	for k, v := range m.stocks {
		snapshot[k] = v
	}
	if err := fn(ctx, m); err != nil {
		m.stocks = snapshot
		return err
	}
	return nil
}

func (m *memStore) LockStock(_ context.Context, variantID string) (*Stock, error) {
	s, ok := m.stocks[variantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memStore) SaveStock(_ context.Context, s *Stock) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stocks[s.VariantID] = *s
	return nil
}

func (m *memStore) Get(_ context.Context, variantID string) (*Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[variantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Stock
	for _, s := range m.stocks {
		if f.LowStockOnly && !s.IsLowStock() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func newTestService(t *testing.T, store *memStore, opts ...Option) *Service {
	t.Helper()
	ledger, err := NewLedger(metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return NewService(store, store, ledger, opts...)
}

func TestService_ReserveThenConfirm(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 10, LowStockThreshold: 5})
	svc := newTestService(t, store)
	ctx := context.Background()

	s, err := svc.Reserve(ctx, "v1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Reserved)
	assert.Equal(t, 0, s.Available())

	_, err = svc.Reserve(ctx, "v1", 1)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 0, ise.Available)
	assert.Equal(t, 1, ise.Requested)

	s, err = svc.ConfirmSale(ctx, "v1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Quantity)
	assert.Equal(t, 0, s.Reserved)
}

func TestService_FailedReserveLeavesStockUnchanged(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 3, Reserved: 1})
	svc := newTestService(t, store)

	_, err := svc.Reserve(context.Background(), "v1", 5)
	require.Error(t, err)

	got, err := svc.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, 1, got.Reserved)
}

func TestService_UnknownVariant(t *testing.T) {
	svc := newTestService(t, newMemStore())

	_, err := svc.Restore(context.Background(), "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_SaveErrorRollsBack(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 3})
	store.saveErr = errors.New("disk full")
	svc := newTestService(t, store)

	_, err := svc.Reserve(context.Background(), "v1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save stock v1")
	assert.Equal(t, 0, store.stocks["v1"].Reserved)
}

func TestService_ConcurrentReservationsNeverOversell(t *testing.T) {
	const (
		quantity = 10
		workers  = 50
	)
	store := newMemStore(Stock{VariantID: "v1", Quantity: quantity})
	svc := newTestService(t, store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reserve(context.Background(), "v1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quantity, succeeded)
	assert.Equal(t, quantity, store.stocks["v1"].Reserved)
}

func TestService_PublishesLowStock(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 10, LowStockThreshold: 5})
	pub := &recordingPublisher{}
	svc := newTestService(t, store, WithPublisher(pub))
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "v1", 4)
	require.NoError(t, err)
	assert.Empty(t, pub.events)

	_, err = svc.Reserve(ctx, "v1", 2)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeStockLow, pub.events[0].Type)
	assert.Equal(t, "v1", pub.events[0].Key)

	// Already low: no second event.
	_, err = svc.Reserve(ctx, "v1", 1)
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

func TestService_Adjust(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 10, Reserved: 2, LowStockThreshold: 5})
	svc := newTestService(t, store)
	ctx := context.Background()

	qty, threshold := 25, 8
	s, err := svc.Adjust(ctx, "v1", Adjustment{Quantity: &qty, LowStockThreshold: &threshold})
	require.NoError(t, err)
	assert.Equal(t, 25, s.Quantity)
	assert.Equal(t, 2, s.Reserved)
	assert.Equal(t, 8, s.LowStockThreshold)

	neg := -1
	_, err = svc.Adjust(ctx, "v1", Adjustment{Quantity: &neg})
	require.ErrorIs(t, err, ErrInvalidAdjustment)

	_, err = svc.Adjust(ctx, "v1", Adjustment{})
	require.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestService_AdjustBelowReserved(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 10, LowStockThreshold: 5})
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "v1", 8)
	require.NoError(t, err)

	qty := 3
	_, err = svc.Adjust(ctx, "v1", Adjustment{Quantity: &qty})
	require.ErrorIs(t, err, ErrInvalidAdjustment)
	assert.Contains(t, err.Error(), "below reserved 8")

	s, err := svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, s.Quantity)
	assert.Equal(t, 8, s.Reserved)

	qty = 8
	s, err = svc.Adjust(ctx, "v1", Adjustment{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 8, s.Quantity)
	assert.Equal(t, 0, s.Available())
}

func TestService_RandomSequenceWithAdjustments(t *testing.T) {
	store := newMemStore(Stock{VariantID: "v1", Quantity: 10, LowStockThreshold: 5})
	svc := newTestService(t, store)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	ops := []Op{OpReserve, OpRelease, OpConfirm, OpRestore}

	for step := range 500 {
		var err error
		if rng.IntN(5) == 0 {
			qty := rng.IntN(15)
			_, err = svc.Adjust(ctx, "v1", Adjustment{Quantity: &qty})
		} else {
			_, err = svc.Apply(ctx, ops[rng.IntN(len(ops))], "v1", rng.IntN(6)+1)
		}
		var ise *InsufficientStockError
		if err != nil && !errors.Is(err, ErrInvalidAdjustment) && !errors.As(err, &ise) {
			require.NoError(t, err, "step %d", step)
		}

		s, err := svc.Get(ctx, "v1")
		require.NoError(t, err)
		require.GreaterOrEqual(t, s.Reserved, 0, "step %d", step)
		require.LessOrEqual(t, s.Reserved, s.Quantity, "step %d", step)
	}
}

func TestService_ListLowStock(t *testing.T) {
	store := newMemStore(
		Stock{VariantID: "v1", Quantity: 3, LowStockThreshold: 5},
		Stock{VariantID: "v2", Quantity: 30, LowStockThreshold: 5},
	)
	svc := newTestService(t, store)

	got, err := svc.List(context.Background(), Filter{LowStockOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].VariantID)
}
