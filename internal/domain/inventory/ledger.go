package inventory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/beauty-shop/internal/events"
)

// StockStore reads and writes stock rows inside an open transaction.
// LockStock must take an exclusive row lock held until the transaction ends.
type StockStore interface {
	LockStock(ctx context.Context, variantID string) (*Stock, error)
	SaveStock(ctx context.Context, s *Stock) error
}

// Movement is the outcome of one ledger operation.
type Movement struct {
	Op     Op
	Qty    int
	Before Stock
	After  Stock
}

// BecameLow reports whether the operation moved the variant into low stock.
func (m Movement) BecameLow() bool {
	return m.After.IsLowStock() && !m.Before.IsLowStock()
}

// Ledger applies stock operations through a StockStore. It holds no state
// besides instruments, so one Ledger is shared by every service that touches
// stock.
type Ledger struct {
	ops      metric.Int64Counter
	lowStock metric.Int64Counter
	now      func() time.Time
}

// NewLedger creates a Ledger that records operation counters on meter.
func NewLedger(meter metric.Meter) (*Ledger, error) {
	ops, err := meter.Int64Counter("shop.inventory.ledger_operations",
		metric.WithDescription("Stock ledger operations by op and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create ledger_operations counter")
	}
	lowStock, err := meter.Int64Counter("shop.inventory.low_stock",
		metric.WithDescription("Ledger operations that left a variant in low stock"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create low_stock counter")
	}
	return &Ledger{ops: ops, lowStock: lowStock, now: time.Now}, nil
}

// Apply locks the stock row of variantID, runs op and saves the result.
// The caller owns the transaction behind store.
func (l *Ledger) Apply(ctx context.Context, store StockStore, op Op, variantID string, qty int) (Movement, error) {
	if qty <= 0 {
		l.record(ctx, op, "invalid")
		return Movement{}, ErrInvalidQuantity
	}

	s, err := store.LockStock(ctx, variantID)
	if err != nil {
		return Movement{}, errors.Wrapf(err, "lock stock %s", variantID)
	}

	before := *s
	if err := s.Apply(op, qty); err != nil {
		l.record(ctx, op, "rejected")
		return Movement{}, err
	}
	s.UpdatedAt = l.now()

	if err := store.SaveStock(ctx, s); err != nil {
		return Movement{}, errors.Wrapf(err, "save stock %s", variantID)
	}

	m := Movement{Op: op, Qty: qty, Before: before, After: *s}
	l.record(ctx, op, "ok")
	if m.BecameLow() {
		l.lowStock.Add(ctx, 1)
	}
	return m, nil
}

// Reserve applies OpReserve.
func (l *Ledger) Reserve(ctx context.Context, store StockStore, variantID string, qty int) (Movement, error) {
	return l.Apply(ctx, store, OpReserve, variantID, qty)
}

// ReleaseReservation applies OpRelease.
func (l *Ledger) ReleaseReservation(ctx context.Context, store StockStore, variantID string, qty int) (Movement, error) {
	return l.Apply(ctx, store, OpRelease, variantID, qty)
}

// ConfirmSale applies OpConfirm.
func (l *Ledger) ConfirmSale(ctx context.Context, store StockStore, variantID string, qty int) (Movement, error) {
	return l.Apply(ctx, store, OpConfirm, variantID, qty)
}

// Restore applies OpRestore.
func (l *Ledger) Restore(ctx context.Context, store StockStore, variantID string, qty int) (Movement, error) {
	return l.Apply(ctx, store, OpRestore, variantID, qty)
}

func (l *Ledger) record(ctx context.Context, op Op, outcome string) {
	l.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("outcome", outcome),
	))
}

// LowStockEvents returns a StockLow event for every movement that crossed
// into low stock.
func LowStockEvents(now time.Time, movements []Movement) []events.Event {
	var evs []events.Event
	for _, m := range movements {
		if m.BecameLow() {
			evs = append(evs, events.StockLow(now, m.After.VariantID, m.After.Available(), m.After.LowStockThreshold))
		}
	}
	return evs
}
