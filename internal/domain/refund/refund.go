package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
)

// Status is the state of a refund request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Sentinel errors for refund operations.
var (
	ErrNotFound   = errors.New("refund not found")
	ErrEmptyItems = errors.New("refund items required")
)

// IllegalTransitionError is returned when a refund is not pending.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot change refund status from %s to %s", e.From, e.To)
}

// OrderNotRefundableError is returned when the order status does not allow
// refunds.
type OrderNotRefundableError struct {
	OrderID string
	Status  order.Status
}

func (e *OrderNotRefundableError) Error() string {
	return fmt.Sprintf("order %s in status %s cannot be refunded", e.OrderID, e.Status)
}

// OverRefundError is returned when a refund asks for more units than remain
// refundable on an order item.
type OverRefundError struct {
	OrderItemID string
	Requested   int
	Refundable  int
}

func (e *OverRefundError) Error() string {
	return fmt.Sprintf("order item %s: requested %d, refundable %d", e.OrderItemID, e.Requested, e.Refundable)
}

// ItemNotInOrderError is returned for a refund line naming an item of
// another order.
type ItemNotInOrderError struct {
	OrderItemID string
}

func (e *ItemNotInOrderError) Error() string {
	return fmt.Sprintf("order item %s does not belong to the order", e.OrderItemID)
}

// InvalidQuantityError is returned for a refund line with quantity below 1.
type InvalidQuantityError struct {
	OrderItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for order item %s", e.OrderItemID)
}

// Refund is a reimbursement request against an order.
type Refund struct {
	ID          string
	OrderID     string
	Status      Status
	Reason      string
	Amount      decimal.Decimal
	Items       []Item
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Item is the number of units of one order item being refunded.
type Item struct {
	ID          string
	RefundID    string
	OrderItemID string
	Quantity    int
	Reason      string
}

// Repository provides non-locking reads of refunds.
type Repository interface {
	Get(ctx context.Context, id string) (*Refund, error)
	ListByOrder(ctx context.Context, orderID string) ([]Refund, error)
}

// Tx is the set of writes available inside a refund transaction. LockRefund
// loads the refund with its items; LockOrder locks the order and its items.
type Tx interface {
	inventory.StockStore
	LockRefund(ctx context.Context, id string) (*Refund, error)
	LockOrder(ctx context.Context, id string) (*order.Order, error)
	InsertRefund(ctx context.Context, r *Refund) error
	SetRefundStatus(ctx context.Context, id string, status Status, processedAt time.Time) error
	AddRefundedQuantity(ctx context.Context, orderItemID string, qty int) error
	UpdateOrderStatus(ctx context.Context, id string, status order.Status, at time.Time) error
}

// UnitOfWork runs fn in one transaction, committing only when fn returns nil.
type UnitOfWork interface {
	InRefundTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
