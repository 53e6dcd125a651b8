package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
)

const (
	stockColumns = `s.variant_id, v.sku, s.quantity, s.reserved, s.low_stock_threshold, s.updated_at`

	getStockSQL = `SELECT ` + stockColumns + `
		FROM stock s JOIN variants v ON v.id = s.variant_id
		WHERE s.variant_id = $1`

	lockStockSQL = getStockSQL + ` FOR UPDATE OF s`

	listStockSQL = `SELECT ` + stockColumns + `
		FROM stock s JOIN variants v ON v.id = s.variant_id
		WHERE NOT $1::boolean
			OR (s.quantity - s.reserved > 0 AND s.quantity - s.reserved <= s.low_stock_threshold)
		ORDER BY v.sku
		LIMIT $2 OFFSET $3`

	saveStockSQL = `UPDATE stock
		SET quantity = $2, reserved = $3, low_stock_threshold = $4, updated_at = $5
		WHERE variant_id = $1`
)

var _ inventory.Repository = (*StockRepository)(nil)

// StockRepository provides non-locking stock reads.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository returns a StockRepository that uses the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// Get returns the stock row of a variant.
func (r *StockRepository) Get(ctx context.Context, variantID string) (*inventory.Stock, error) {
	return getStock(ctx, r.pool, getStockSQL, variantID)
}

// List returns stock rows ordered by SKU.
func (r *StockRepository) List(ctx context.Context, f inventory.Filter) ([]inventory.Stock, error) {
	rows, err := r.pool.Query(ctx, listStockSQL, f.LowStockOnly, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	return pgx.CollectRows(rows, scanStock)
}

// LockStock locks the stock row of variantID until the transaction ends.
func (t *Tx) LockStock(ctx context.Context, variantID string) (*inventory.Stock, error) {
	return getStock(ctx, t.tx, lockStockSQL, variantID)
}

// SaveStock writes the counters of s.
func (t *Tx) SaveStock(ctx context.Context, s *inventory.Stock) error {
	tag, err := t.tx.Exec(ctx, saveStockSQL, s.VariantID, s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving stock %q: %w", s.VariantID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func getStock(ctx context.Context, q querier, sql, variantID string) (*inventory.Stock, error) {
	rows, err := q.Query(ctx, sql, variantID)
	if err != nil {
		return nil, fmt.Errorf("getting stock %q: %w", variantID, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock %q: %w", variantID, err)
	}
	return &s, nil
}

func scanStock(row pgx.CollectableRow) (inventory.Stock, error) {
	var s inventory.Stock
	err := row.Scan(&s.VariantID, &s.SKU, &s.Quantity, &s.Reserved, &s.LowStockThreshold, &s.UpdatedAt)
	return s, err
}
