package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
)

// Sentinel errors for order operations.
var (
	ErrNotFound           = errors.New("order not found")
	ErrEmptyItems         = errors.New("items required")
	ErrGuestEmailRequired = errors.New("guest email required")
	ErrDuplicateReference = errors.New("duplicate order reference")
)

// VariantNotFoundError indicates a requested variant does not exist or is
// not for sale.
type VariantNotFoundError struct {
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s not found", e.VariantID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	VariantID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for variant %s", e.VariantID)
}

// Address is the shipping destination captured at checkout.
type Address struct {
	Name       string
	Line       string
	City       string
	Department string
	PostalCode string
	Phone      string
}

// Order is a customer order with price snapshots of its items.
type Order struct {
	ID                   string
	Reference            string
	Status               Status
	GuestEmail           string
	GuestName            string
	Items                []Item
	Subtotal             decimal.Decimal
	DiscountAmount       decimal.Decimal
	ShippingAmount       decimal.Decimal
	Total                decimal.Decimal
	CouponCode           string
	Shipping             Address
	PaymentTransactionID string
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Item is one line of an order. Names, SKU and price are copied from the
// catalog when the order is placed.
type Item struct {
	ID               string
	OrderID          string
	VariantID        string
	ProductName      string
	VariantName      string
	SKU              string
	UnitPrice        decimal.Decimal
	Quantity         int
	RefundedQuantity int
	Subtotal         decimal.Decimal
}

// RefundableQuantity is the number of units not yet refunded.
func (i Item) RefundableQuantity() int {
	return max(0, i.Quantity-i.RefundedQuantity)
}

// Item returns the item with the given id, or nil.
func (o *Order) Item(id string) *Item {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

// RefundedStatus derives the order status from its refund tallies.
func (o *Order) RefundedStatus() Status {
	var ordered, refunded int
	for _, it := range o.Items {
		ordered += it.Quantity
		refunded += it.RefundedQuantity
	}
	if refunded >= ordered {
		return StatusRefunded
	}
	return StatusPartiallyRefunded
}

// Filter narrows order listings.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository provides non-locking reads of orders.
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
}

// Tx is the set of writes available inside an order transaction. LockOrder
// takes exclusive locks on the order row and its item rows.
type Tx interface {
	inventory.StockStore
	coupon.Redeemer
	LockOrder(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrderStatus(ctx context.Context, id string, status Status, at time.Time) error
	SetPaymentTransaction(ctx context.Context, id, transactionID string) error
}

// UnitOfWork runs fn in one transaction, committing only when fn returns nil.
type UnitOfWork interface {
	InOrderTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
