// Package events defines the domain events emitted after a transaction
// commits and the Publisher abstraction that delivers them.
package events

import (
	"context"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Event types.
const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
	TypeRefundApproved     = "refund.approved"
	TypeStockLow           = "stock.low"
)

// Event is a single message ready for delivery. Key is used for partitioning,
// so all events for one aggregate keep their relative order.
type Event struct {
	Type       string
	Key        string
	OccurredAt time.Time
	Payload    []byte
}

// Publisher delivers events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, ...Event) error { return nil }

var _ Publisher = Noop{}

func newEvent(typ, key string, now time.Time, fn func(e *jx.Encoder)) Event {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(typ) })
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(now.UTC().Format(time.RFC3339Nano)) })
		fn(e)
	})
	return Event{
		Type:       typ,
		Key:        key,
		OccurredAt: now,
		Payload:    e.Bytes(),
	}
}

// OrderPlaced is emitted once checkout commits.
func OrderPlaced(now time.Time, orderID, reference string, total decimal.Decimal) Event {
	return newEvent(TypeOrderPlaced, orderID, now, func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(orderID) })
		e.Field("reference", func(e *jx.Encoder) { e.Str(reference) })
		e.Field("total", func(e *jx.Encoder) { e.Str(total.StringFixed(2)) })
	})
}

// OrderStatusChanged is emitted for every committed order status transition.
func OrderStatusChanged(now time.Time, orderID, from, to string) Event {
	return newEvent(TypeOrderStatusChanged, orderID, now, func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(orderID) })
		e.Field("from", func(e *jx.Encoder) { e.Str(from) })
		e.Field("to", func(e *jx.Encoder) { e.Str(to) })
	})
}

// RefundApproved is emitted when a refund approval commits.
func RefundApproved(now time.Time, refundID, orderID string, amount decimal.Decimal) Event {
	return newEvent(TypeRefundApproved, orderID, now, func(e *jx.Encoder) {
		e.Field("refund_id", func(e *jx.Encoder) { e.Str(refundID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(orderID) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(amount.StringFixed(2)) })
	})
}

// StockLow is emitted when a ledger operation leaves a variant at or below
// its low stock threshold.
func StockLow(now time.Time, variantID string, available, threshold int) Event {
	return newEvent(TypeStockLow, variantID, now, func(e *jx.Encoder) {
		e.Field("variant_id", func(e *jx.Encoder) { e.Str(variantID) })
		e.Field("available", func(e *jx.Encoder) { e.Int(available) })
		e.Field("threshold", func(e *jx.Encoder) { e.Int(threshold) })
	})
}
