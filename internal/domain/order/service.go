package order

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
	"github.com/xenking/beauty-shop/internal/events"
)

// VariantLookup fetches variants with their product names.
type VariantLookup interface {
	GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error)
}

// ShippingQuoter prices delivery for a destination.
type ShippingQuoter interface {
	Calculate(ctx context.Context, city, department string, subtotal decimal.Decimal) (*shipping.Quote, error)
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the publisher for order and stock events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTracerProvider enables tracing of order transactions.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("shop/order") }
}

// Service encapsulates checkout and the order lifecycle.
type Service struct {
	uow      UnitOfWork
	orders   Repository
	variants VariantLookup
	coupons  coupon.Validator
	shipping ShippingQuoter
	ledger   *inventory.Ledger
	events   events.Publisher
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	uow UnitOfWork,
	orders Repository,
	variants VariantLookup,
	coupons coupon.Validator,
	quoter ShippingQuoter,
	ledger *inventory.Ledger,
	opts ...Option,
) *Service {
	s := &Service{
		uow:      uow,
		orders:   orders,
		variants: variants,
		coupons:  coupons,
		shipping: quoter,
		ledger:   ledger,
		events:   events.Noop{},
		tracer:   noop.NewTracerProvider().Tracer(""),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns orders matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	f.Offset = max(f.Offset, 0)
	return s.orders.List(ctx, f)
}

// Cancel cancels an order and returns its stock: reservations are released
// for unpaid orders, sold units are restored for paid ones.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	return s.transition(ctx, id, StatusCancelled, "")
}

// UpdateStatus moves an order to status through the transition table.
// Cancelling and paying carry their stock effects; refund statuses are
// rejected.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", status)
	}
	if status == StatusRefunded || status == StatusPartiallyRefunded {
		return nil, ErrRefundStatus
	}
	return s.transition(ctx, id, status, "")
}

// StartPayment marks an order as waiting for the payment gateway.
func (s *Service) StartPayment(ctx context.Context, id string) (*Order, error) {
	return s.transition(ctx, id, StatusPaymentProcessing, "")
}

// MarkPaid records a confirmed payment and converts the reservations into
// sales.
func (s *Service) MarkPaid(ctx context.Context, id, transactionID string) (*Order, error) {
	return s.transition(ctx, id, StatusPaid, transactionID)
}

func (s *Service) transition(ctx context.Context, id string, to Status, transactionID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition", trace.WithAttributes(
		attribute.String("order_id", id),
		attribute.String("to", string(to)),
	))
	defer span.End()

	var (
		o         *Order
		from      Status
		movements []inventory.Movement
	)
	now := s.now()
	err := s.uow.InOrderTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if err := Transition(from, to); err != nil {
			return err
		}

		movements, err = s.applyStockEffects(ctx, tx, o, from, to)
		if err != nil {
			return err
		}

		if transactionID != "" {
			if err := tx.SetPaymentTransaction(ctx, o.ID, transactionID); err != nil {
				return errors.Wrap(err, "set payment transaction")
			}
			o.PaymentTransactionID = transactionID
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, to, now); err != nil {
			return errors.Wrap(err, "update order status")
		}
		o.Status = to
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("stock_movements", len(movements)),
	)
	evs := append([]events.Event{events.OrderStatusChanged(now, o.ID, string(from), string(to))},
		inventory.LowStockEvents(now, movements)...)
	s.publish(ctx, evs)

	return o, nil
}

// applyStockEffects runs the ledger operations implied by from -> to, one
// per item, in ascending variant order.
func (s *Service) applyStockEffects(ctx context.Context, tx Tx, o *Order, from, to Status) ([]inventory.Movement, error) {
	var op inventory.Op
	switch {
	case to == StatusCancelled && from.HoldsReservation():
		op = inventory.OpRelease
	case to == StatusCancelled:
		op = inventory.OpRestore
	case to == StatusPaid && from.HoldsReservation():
		op = inventory.OpConfirm
	default:
		return nil, nil
	}

	items := sortedByVariant(o.Items)
	movements := make([]inventory.Movement, 0, len(items))
	for _, it := range items {
		if it.VariantID == "" {
			// Variant deleted from the catalog; its stock row went with it.
			continue
		}
		m, err := s.ledger.Apply(ctx, tx, op, it.VariantID, it.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "%s stock for item %s", op, it.ID)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.events.Publish(ctx, evs...); err != nil {
		zctx.From(ctx).Warn("Publish order events", zap.Error(err))
	}
}

func sortedByVariant(items []Item) []Item {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b Item) int {
		return cmp.Compare(a.VariantID, b.VariantID)
	})
	return out
}
