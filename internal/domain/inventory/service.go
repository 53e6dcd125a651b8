package inventory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/events"
)

// ErrInvalidAdjustment is returned when an adjustment sets a negative value
// or changes nothing.
var ErrInvalidAdjustment = errors.New("invalid stock adjustment")

// Transactor runs fn in a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InStockTx(ctx context.Context, fn func(ctx context.Context, store StockStore) error) error
}

// Filter narrows stock listings.
type Filter struct {
	LowStockOnly bool
	Limit        int
	Offset       int
}

// Repository provides non-locking reads of stock rows.
type Repository interface {
	Get(ctx context.Context, variantID string) (*Stock, error)
	List(ctx context.Context, f Filter) ([]Stock, error)
}

// Adjustment is an administrative overwrite of stock counters. Nil fields
// are left untouched.
type Adjustment struct {
	Quantity          *int
	LowStockThreshold *int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the publisher for low stock events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTracerProvider enables tracing of ledger transactions.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("shop/inventory") }
}

// Service exposes the ledger operations as standalone transactions.
type Service struct {
	tx     Transactor
	repo   Repository
	ledger *Ledger
	events events.Publisher
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates an inventory Service.
func NewService(tx Transactor, repo Repository, ledger *Ledger, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		repo:   repo,
		ledger: ledger,
		events: events.Noop{},
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the stock of a variant.
func (s *Service) Get(ctx context.Context, variantID string) (*Stock, error) {
	return s.repo.Get(ctx, variantID)
}

// List returns stock rows matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Stock, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	f.Offset = max(f.Offset, 0)
	return s.repo.List(ctx, f)
}

// Apply runs a single ledger operation in its own transaction.
func (s *Service) Apply(ctx context.Context, op Op, variantID string, qty int) (*Stock, error) {
	if !op.Valid() {
		return nil, errors.Errorf("unknown ledger operation %q", op)
	}

	ctx, span := s.tracer.Start(ctx, "inventory.Apply", trace.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("variant_id", variantID),
		attribute.Int("qty", qty),
	))
	defer span.End()

	var m Movement
	if err := s.tx.InStockTx(ctx, func(ctx context.Context, store StockStore) error {
		var err error
		m, err = s.ledger.Apply(ctx, store, op, variantID, qty)
		return err
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	zctx.From(ctx).Info("Stock updated",
		zap.String("op", string(op)),
		zap.String("variant_id", variantID),
		zap.Int("qty", qty),
		zap.Int("quantity", m.After.Quantity),
		zap.Int("reserved", m.After.Reserved),
	)
	s.publish(ctx, LowStockEvents(s.now(), []Movement{m}))

	after := m.After
	return &after, nil
}

// Reserve holds qty units of a variant.
func (s *Service) Reserve(ctx context.Context, variantID string, qty int) (*Stock, error) {
	return s.Apply(ctx, OpReserve, variantID, qty)
}

// ReleaseReservation gives back qty reserved units.
func (s *Service) ReleaseReservation(ctx context.Context, variantID string, qty int) (*Stock, error) {
	return s.Apply(ctx, OpRelease, variantID, qty)
}

// ConfirmSale converts qty reserved units into a sale.
func (s *Service) ConfirmSale(ctx context.Context, variantID string, qty int) (*Stock, error) {
	return s.Apply(ctx, OpConfirm, variantID, qty)
}

// Restore returns qty sold units to stock.
func (s *Service) Restore(ctx context.Context, variantID string, qty int) (*Stock, error) {
	return s.Apply(ctx, OpRestore, variantID, qty)
}

// Adjust overwrites quantity and threshold under the row lock. Quantity may
// not drop below the units currently reserved.
func (s *Service) Adjust(ctx context.Context, variantID string, adj Adjustment) (*Stock, error) {
	if adj.Quantity == nil && adj.LowStockThreshold == nil {
		return nil, ErrInvalidAdjustment
	}
	if (adj.Quantity != nil && *adj.Quantity < 0) || (adj.LowStockThreshold != nil && *adj.LowStockThreshold < 0) {
		return nil, ErrInvalidAdjustment
	}

	var out Stock
	if err := s.tx.InStockTx(ctx, func(ctx context.Context, store StockStore) error {
		st, err := store.LockStock(ctx, variantID)
		if err != nil {
			return errors.Wrapf(err, "lock stock %s", variantID)
		}
		if adj.Quantity != nil {
			if *adj.Quantity < st.Reserved {
				return errors.Wrapf(ErrInvalidAdjustment, "quantity %d below reserved %d", *adj.Quantity, st.Reserved)
			}
			st.Quantity = *adj.Quantity
		}
		if adj.LowStockThreshold != nil {
			st.LowStockThreshold = *adj.LowStockThreshold
		}
		st.UpdatedAt = s.now()
		if err := store.SaveStock(ctx, st); err != nil {
			return errors.Wrapf(err, "save stock %s", variantID)
		}
		out = *st
		return nil
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Stock adjusted",
		zap.String("variant_id", variantID),
		zap.Int("quantity", out.Quantity),
		zap.Int("low_stock_threshold", out.LowStockThreshold),
	)
	return &out, nil
}

func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.events.Publish(ctx, evs...); err != nil {
		zctx.From(ctx).Warn("Publish stock events", zap.Error(err))
	}
}
