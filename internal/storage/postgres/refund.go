package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/refund"
)

const (
	refundColumns = `id, order_id, status, reason, amount, processed_at, created_at`

	getRefundSQL = `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`

	lockRefundSQL = getRefundSQL + ` FOR UPDATE`

	listRefundsByOrderSQL = `SELECT ` + refundColumns + ` FROM refunds
		WHERE order_id = $1
		ORDER BY created_at, id`

	getRefundItemsSQL = `SELECT id, refund_id, order_item_id, quantity, reason
		FROM refund_items
		WHERE refund_id = ANY($1)
		ORDER BY refund_id, id`

	insertRefundSQL = `INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	setRefundStatusSQL = `UPDATE refunds SET status = $2, processed_at = $3 WHERE id = $1`
)

var _ refund.Repository = (*RefundRepository)(nil)

// RefundRepository implements refund.Repository backed by PostgreSQL.
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository returns a RefundRepository that uses the given pool.
func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

// Get returns a refund with its items.
func (r *RefundRepository) Get(ctx context.Context, id string) (*refund.Refund, error) {
	return getRefund(ctx, r.pool, getRefundSQL, id)
}

// ListByOrder returns the refunds of an order, oldest first.
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID string) ([]refund.Refund, error) {
	rows, err := r.pool.Query(ctx, listRefundsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing refunds of order %q: %w", orderID, err)
	}
	refunds, err := pgx.CollectRows(rows, scanRefund)
	if err != nil {
		return nil, fmt.Errorf("listing refunds of order %q: %w", orderID, err)
	}
	if len(refunds) == 0 {
		return refunds, nil
	}

	ids := make([]string, len(refunds))
	for i, rf := range refunds {
		ids[i] = rf.ID
	}
	items, err := refundItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range refunds {
		refunds[i].Items = items[refunds[i].ID]
	}
	return refunds, nil
}

// LockRefund locks a refund row and loads its items.
func (t *Tx) LockRefund(ctx context.Context, id string) (*refund.Refund, error) {
	return getRefund(ctx, t.tx, lockRefundSQL, id)
}

// InsertRefund stores a new refund with its items.
func (t *Tx) InsertRefund(ctx context.Context, r *refund.Refund) error {
	_, err := t.tx.Exec(ctx, insertRefundSQL,
		r.ID, r.OrderID, string(r.Status), r.Reason, r.Amount, r.ProcessedAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating refund %q: %w", r.ID, err)
	}

	batch := &pgx.Batch{}
	for _, it := range r.Items {
		batch.Queue(`INSERT INTO refund_items (id, refund_id, order_item_id, quantity, reason)
			VALUES ($1, $2, $3, $4, $5)`,
			it.ID, r.ID, it.OrderItemID, it.Quantity, it.Reason)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items of refund %q: %w", r.ID, err)
	}
	return nil
}

// SetRefundStatus closes a refund.
func (t *Tx) SetRefundStatus(ctx context.Context, id string, status refund.Status, processedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, setRefundStatusSQL, id, string(status), processedAt)
	if err != nil {
		return fmt.Errorf("updating status of refund %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return refund.ErrNotFound
	}
	return nil
}

func getRefund(ctx context.Context, q querier, sql, id string) (*refund.Refund, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting refund %q: %w", id, err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRefund)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, refund.ErrNotFound
		}
		return nil, fmt.Errorf("getting refund %q: %w", id, err)
	}
	items, err := refundItems(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	r.Items = items[id]
	return &r, nil
}

func refundItems(ctx context.Context, q querier, refundIDs []string) (map[string][]refund.Item, error) {
	rows, err := q.Query(ctx, getRefundItemsSQL, refundIDs)
	if err != nil {
		return nil, fmt.Errorf("getting refund items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (refund.Item, error) {
		var it refund.Item
		err := row.Scan(&it.ID, &it.RefundID, &it.OrderItemID, &it.Quantity, &it.Reason)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting refund items: %w", err)
	}
	byRefund := make(map[string][]refund.Item, len(refundIDs))
	for _, it := range items {
		byRefund[it.RefundID] = append(byRefund[it.RefundID], it)
	}
	return byRefund, nil
}

func scanRefund(row pgx.CollectableRow) (refund.Refund, error) {
	var (
		r      refund.Refund
		status string
	)
	err := row.Scan(&r.ID, &r.OrderID, &status, &r.Reason, &r.Amount, &r.ProcessedAt, &r.CreatedAt)
	r.Status = refund.Status(status)
	return r, err
}
