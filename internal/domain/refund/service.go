package refund

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/events"
)

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the publisher for refund, order and stock events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTracerProvider enables tracing of refund transactions.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("shop/refund") }
}

// Service manages refund requests and their approval.
type Service struct {
	uow     UnitOfWork
	refunds Repository
	ledger  *inventory.Ledger
	events  events.Publisher
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a refund Service.
func NewService(uow UnitOfWork, refunds Repository, ledger *inventory.Ledger, opts ...Option) *Service {
	s := &Service{
		uow:     uow,
		refunds: refunds,
		ledger:  ledger,
		events:  events.Noop{},
		tracer:  noop.NewTracerProvider().Tracer(""),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateRequest holds the input for a new refund.
type CreateRequest struct {
	OrderID string
	Reason  string
	Items   []Item
}

// Get returns a refund with its items.
func (s *Service) Get(ctx context.Context, id string) (*Refund, error) {
	return s.refunds.Get(ctx, id)
}

// ListByOrder returns the refunds of an order, oldest first.
func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Refund, error) {
	return s.refunds.ListByOrder(ctx, orderID)
}

// Create stores a pending refund after checking that the order is refundable
// and no item is refunded beyond its remaining quantity.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Refund, error) {
	items, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &Refund{
		ID:        uuid.NewString(),
		OrderID:   req.OrderID,
		Status:    StatusPending,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: now,
	}
	for _, it := range items {
		it.ID = uuid.NewString()
		it.RefundID = r.ID
		r.Items = append(r.Items, it)
	}

	if err := s.uow.InRefundTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !o.Status.Refundable() {
			return &OrderNotRefundableError{OrderID: o.ID, Status: o.Status}
		}
		amount, err := applyToOrder(o, r.Items)
		if err != nil {
			return err
		}
		r.Amount = amount
		if err := tx.InsertRefund(ctx, r); err != nil {
			return errors.Wrap(err, "insert refund")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Refund requested",
		zap.String("refund_id", r.ID),
		zap.String("order_id", r.OrderID),
		zap.String("amount", r.Amount.StringFixed(2)),
	)
	return r, nil
}

// Approve restores the refunded units to stock, adds them to the order items'
// refunded quantities and moves the order to refunded or partially_refunded.
// Only pending refunds can be approved.
func (s *Service) Approve(ctx context.Context, id string) (*Refund, error) {
	ctx, span := s.tracer.Start(ctx, "refund.Approve", trace.WithAttributes(
		attribute.String("refund_id", id),
	))
	defer span.End()

	var (
		r         *Refund
		from, to  order.Status
		movements []inventory.Movement
	)
	now := s.now()
	err := s.uow.InRefundTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		r, err = tx.LockRefund(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return &IllegalTransitionError{From: r.Status, To: StatusApproved}
		}

		o, err := tx.LockOrder(ctx, r.OrderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		from = o.Status
		if !from.Refundable() {
			return &OrderNotRefundableError{OrderID: o.ID, Status: from}
		}
		// Tallies are updated in memory first so every check runs before
		// the first write.
		if _, err := applyToOrder(o, r.Items); err != nil {
			return err
		}
		to = o.RefundedStatus()
		if err := order.Transition(from, to); err != nil {
			return err
		}

		movements = movements[:0]
		for _, ri := range sortedByVariant(o, r.Items) {
			variantID := o.Item(ri.OrderItemID).VariantID
			if variantID != "" {
				m, err := s.ledger.Restore(ctx, tx, variantID, ri.Quantity)
				if err != nil {
					return errors.Wrapf(err, "restore stock for item %s", ri.OrderItemID)
				}
				movements = append(movements, m)
			}
			if err := tx.AddRefundedQuantity(ctx, ri.OrderItemID, ri.Quantity); err != nil {
				return errors.Wrapf(err, "add refunded quantity for item %s", ri.OrderItemID)
			}
		}
		if err := tx.SetRefundStatus(ctx, r.ID, StatusApproved, now); err != nil {
			return errors.Wrap(err, "set refund status")
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, to, now); err != nil {
			return errors.Wrap(err, "update order status")
		}
		r.Status = StatusApproved
		r.ProcessedAt = &now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	zctx.From(ctx).Info("Refund approved",
		zap.String("refund_id", r.ID),
		zap.String("order_id", r.OrderID),
		zap.String("order_status", string(to)),
	)
	evs := []events.Event{
		events.RefundApproved(now, r.ID, r.OrderID, r.Amount),
		events.OrderStatusChanged(now, r.OrderID, string(from), string(to)),
	}
	s.publish(ctx, append(evs, inventory.LowStockEvents(now, movements)...))

	return r, nil
}

// Reject closes a pending refund without touching stock or the order.
func (s *Service) Reject(ctx context.Context, id string) (*Refund, error) {
	var r *Refund
	now := s.now()
	if err := s.uow.InRefundTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		r, err = tx.LockRefund(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return &IllegalTransitionError{From: r.Status, To: StatusRejected}
		}
		if err := tx.SetRefundStatus(ctx, r.ID, StatusRejected, now); err != nil {
			return errors.Wrap(err, "set refund status")
		}
		r.Status = StatusRejected
		r.ProcessedAt = &now
		return nil
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Refund rejected", zap.String("refund_id", r.ID))
	return r, nil
}

func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if err := s.events.Publish(ctx, evs...); err != nil {
		zctx.From(ctx).Warn("Publish refund events", zap.Error(err))
	}
}

// applyToOrder adds the refund items to the refunded quantities of o and
// returns the refund amount.
func applyToOrder(o *order.Order, items []Item) (decimal.Decimal, error) {
	amount := decimal.Zero
	for _, ri := range items {
		it := o.Item(ri.OrderItemID)
		if it == nil {
			return decimal.Zero, &ItemNotInOrderError{OrderItemID: ri.OrderItemID}
		}
		if left := it.RefundableQuantity(); ri.Quantity > left {
			return decimal.Zero, &OverRefundError{
				OrderItemID: ri.OrderItemID,
				Requested:   ri.Quantity,
				Refundable:  left,
			}
		}
		it.RefundedQuantity += ri.Quantity
		amount = amount.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(ri.Quantity))))
	}
	return amount.Round(2), nil
}

// mergeItems validates quantities and folds repeated order items together.
func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	idx := make(map[string]int, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, &InvalidQuantityError{OrderItemID: it.OrderItemID}
		}
		if i, ok := idx[it.OrderItemID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.OrderItemID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func sortedByVariant(o *order.Order, items []Item) []Item {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b Item) int {
		return cmp.Compare(o.Item(a.OrderItemID).VariantID, o.Item(b.OrderItemID).VariantID)
	})
	return out
}
