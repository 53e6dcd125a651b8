package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/order"
)

const (
	orderColumns = `id, reference, status, guest_email, guest_name,
		subtotal, discount_amount, shipping_amount, total, coupon_code,
		shipping_name, shipping_address, shipping_city, shipping_department,
		shipping_postal_code, shipping_phone, payment_transaction_id, notes,
		created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE $1::text = '' OR status = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	orderItemColumns = `id, order_id, variant_id, product_name, variant_name, sku,
		unit_price, quantity, refunded_quantity, subtotal`

	getOrderItemsSQL = `SELECT ` + orderItemColumns + ` FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`

	lockOrderItemsSQL = `SELECT ` + orderItemColumns + ` FROM order_items
		WHERE order_id = $1
		ORDER BY position
		FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	setPaymentTransactionSQL = `UPDATE orders SET payment_transaction_id = $2 WHERE id = $1`

	addRefundedQuantitySQL = `UPDATE order_items
		SET refunded_quantity = refunded_quantity + $2
		WHERE id = $1`
)

var orderItemCopyColumns = []string{
	"id", "order_id", "position", "variant_id", "product_name", "variant_name", "sku",
	"unit_price", "quantity", "refunded_quantity", "subtotal",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := getOrder(ctx, r.pool, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

// List returns orders newest first, each with its items.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepository) items(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	rows, err := r.pool.Query(ctx, getOrderItemsSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	byOrder := make(map[string][]order.Item, len(orderIDs))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	return byOrder, nil
}

// LockOrder locks the order row and then its item rows.
func (t *Tx) LockOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := getOrder(ctx, t.tx, lockOrderSQL, id)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, lockOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("locking items of order %q: %w", id, err)
	}
	return o, nil
}

// InsertOrder stores a new order and copies its items in.
func (t *Tx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Reference, string(o.Status), o.GuestEmail, o.GuestName,
		o.Subtotal, o.DiscountAmount, o.ShippingAmount, o.Total, o.CouponCode,
		o.Shipping.Name, o.Shipping.Line, o.Shipping.City, o.Shipping.Department,
		o.Shipping.PostalCode, o.Shipping.Phone, o.PaymentTransactionID, o.Notes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateReference
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	_, err = t.tx.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemCopyColumns,
		pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
			it := o.Items[i]
			return []any{
				it.ID, o.ID, i, nullString(it.VariantID), it.ProductName, it.VariantName, it.SKU,
				it.UnitPrice, it.Quantity, it.RefundedQuantity, it.Subtotal,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("creating items of order %q: %w", o.ID, err)
	}
	return nil
}

// UpdateOrderStatus writes the status of an order.
func (t *Tx) UpdateOrderStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	tag, err := t.tx.Exec(ctx, updateOrderStatusSQL, id, string(status), at)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetPaymentTransaction records the gateway transaction id of an order.
func (t *Tx) SetPaymentTransaction(ctx context.Context, id, transactionID string) error {
	if _, err := t.tx.Exec(ctx, setPaymentTransactionSQL, id, transactionID); err != nil {
		return fmt.Errorf("setting payment transaction of order %q: %w", id, err)
	}
	return nil
}

// AddRefundedQuantity adds qty to the refunded quantity of an order item.
func (t *Tx) AddRefundedQuantity(ctx context.Context, orderItemID string, qty int) error {
	tag, err := t.tx.Exec(ctx, addRefundedQuantitySQL, orderItemID, qty)
	if err != nil {
		return fmt.Errorf("adding refunded quantity to item %q: %w", orderItemID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func getOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Reference, &status, &o.GuestEmail, &o.GuestName,
		&o.Subtotal, &o.DiscountAmount, &o.ShippingAmount, &o.Total, &o.CouponCode,
		&o.Shipping.Name, &o.Shipping.Line, &o.Shipping.City, &o.Shipping.Department,
		&o.Shipping.PostalCode, &o.Shipping.Phone, &o.PaymentTransactionID, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it        order.Item
		variantID *string
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &variantID, &it.ProductName, &it.VariantName, &it.SKU,
		&it.UnitPrice, &it.Quantity, &it.RefundedQuantity, &it.Subtotal,
	)
	it.VariantID = fromNull(variantID)
	return it, err
}
