package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/shipping"
)

const (
	shippingRateColumns = `id, name, city, department, price, free_shipping_from,
		estimated_days_min, estimated_days_max, is_active, is_default`

	listShippingRatesSQL = `SELECT ` + shippingRateColumns + ` FROM shipping_rates
		ORDER BY is_default DESC, city, department, name`

	listActiveShippingRatesSQL = `SELECT ` + shippingRateColumns + ` FROM shipping_rates
		WHERE is_active
		ORDER BY is_default DESC, city, department, name`

	insertShippingRateSQL = `INSERT INTO shipping_rates (` + shippingRateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

var _ shipping.Repository = (*ShippingRepository)(nil)

// ShippingRepository implements shipping.Repository backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository that uses the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// ListActive returns the rates used for quoting.
func (r *ShippingRepository) ListActive(ctx context.Context) ([]shipping.Rate, error) {
	rows, err := r.pool.Query(ctx, listActiveShippingRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active shipping rates: %w", err)
	}
	return pgx.CollectRows(rows, scanShippingRate)
}

// List returns every rate.
func (r *ShippingRepository) List(ctx context.Context) ([]shipping.Rate, error) {
	rows, err := r.pool.Query(ctx, listShippingRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping rates: %w", err)
	}
	return pgx.CollectRows(rows, scanShippingRate)
}

// Create stores a rate. At most one active default rate may exist.
func (r *ShippingRepository) Create(ctx context.Context, rate *shipping.Rate) error {
	_, err := r.pool.Exec(ctx, insertShippingRateSQL,
		rate.ID, rate.Name, rate.City, rate.Department, rate.Price, rate.FreeShippingFrom,
		rate.EstimatedDaysMin, rate.EstimatedDaysMax, rate.IsActive, rate.IsDefault,
	)
	if err != nil {
		if isUniqueViolation(err) && uniqueConstraint(err) == "shipping_rates_single_default_idx" {
			return shipping.ErrDefaultExists
		}
		return fmt.Errorf("creating shipping rate %q: %w", rate.Name, err)
	}
	return nil
}

func scanShippingRate(row pgx.CollectableRow) (shipping.Rate, error) {
	var rate shipping.Rate
	err := row.Scan(
		&rate.ID, &rate.Name, &rate.City, &rate.Department, &rate.Price, &rate.FreeShippingFrom,
		&rate.EstimatedDaysMin, &rate.EstimatedDaysMax, &rate.IsActive, &rate.IsDefault,
	)
	return rate, err
}
