package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/domain/refund"
)

var (
	_ inventory.Transactor = (*DB)(nil)
	_ order.UnitOfWork     = (*DB)(nil)
	_ refund.UnitOfWork    = (*DB)(nil)

	_ order.Tx  = (*Tx)(nil)
	_ refund.Tx = (*Tx)(nil)
)

// DB runs units of work on the pool. Every unit is one READ COMMITTED
// transaction; rows are serialized with SELECT ... FOR UPDATE.
type DB struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewDB returns a DB. A positive timeout bounds every transaction.
func NewDB(pool *pgxpool.Pool, timeout time.Duration) *DB {
	return &DB{pool: pool, timeout: timeout}
}

// InTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}
	return pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &Tx{tx: tx})
	})
}

// InStockTx implements inventory.Transactor.
func (db *DB) InStockTx(ctx context.Context, fn func(ctx context.Context, store inventory.StockStore) error) error {
	return db.InTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// InOrderTx implements order.UnitOfWork.
func (db *DB) InOrderTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return db.InTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// InRefundTx implements refund.UnitOfWork.
func (db *DB) InRefundTx(ctx context.Context, fn func(ctx context.Context, tx refund.Tx) error) error {
	return db.InTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// Tx holds the writes of one unit of work. Its methods are spread over the
// per-table files.
type Tx struct {
	tx pgx.Tx
}
