package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/beauty-shop/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, value, max_discount, min_order_amount, description,
		valid_from, valid_until, max_uses, uses, active, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY code`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			max_discount = EXCLUDED.max_discount,
			min_order_amount = EXCLUDED.min_order_amount,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses,
			active = EXCLUDED.active`

	updateCouponSQL = `UPDATE coupons SET discount_type = $2, value = $3, max_discount = $4,
		min_order_amount = $5, description = $6, valid_from = $7, valid_until = $8,
		max_uses = $9, active = $10
		WHERE UPPER(code) = UPPER($1)`

	deleteCouponSQL = `DELETE FROM coupons WHERE UPPER(code) = UPPER($1)`

	// Usage check and increment in one statement.
	redeemCouponSQL = `UPDATE coupons SET uses = uses + 1
		WHERE UPPER(code) = UPPER($1) AND active AND (max_uses = 0 OR uses < max_uses)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE UPPER(code) = UPPER($1) AND active)`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Redeemer   = (*Tx)(nil)
)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon case-insensitively.
// Returns coupon.ErrInvalidCoupon when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// List returns every coupon ordered by code.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create stores a new coupon.
func (r *CouponRepository) Create(ctx context.Context, rule *coupon.Rule) error {
	if _, err := r.pool.Exec(ctx, insertCouponSQL, couponArgs(rule)...); err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCouponExists
		}
		return fmt.Errorf("creating coupon %q: %w", rule.Code, err)
	}
	return nil
}

// Update overwrites the rule of an existing coupon; uses and creation time
// are kept.
func (r *CouponRepository) Update(ctx context.Context, rule *coupon.Rule) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		rule.Code, string(rule.DiscountType), rule.Value, rule.MaxDiscount, rule.MinOrderAmount,
		rule.Description, rule.ValidFrom, rule.ValidUntil, rule.MaxUses, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", rule.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert creates or replaces coupons in one batch. Usage counters of
// existing coupons are kept.
func (r *CouponRepository) Upsert(ctx context.Context, rules []coupon.Rule) error {
	batch := &pgx.Batch{}
	for i := range rules {
		batch.Queue(upsertCouponSQL, couponArgs(&rules[i])...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(rules), err)
	}
	return nil
}

// Redeem consumes one use of a coupon.
func (t *Tx) Redeem(ctx context.Context, code string) error {
	tag, err := t.tx.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", code, err)
	}
	if !exists {
		return coupon.ErrInvalidCoupon
	}
	return coupon.ErrCouponUsageLimitReached
}

func couponArgs(r *coupon.Rule) []any {
	return []any{
		r.Code, string(r.DiscountType), r.Value, r.MaxDiscount, r.MinOrderAmount, r.Description,
		r.ValidFrom, r.ValidUntil, r.MaxUses, r.Uses, r.Active, r.CreatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		r            coupon.Rule
		discountType string
	)
	err := row.Scan(
		&r.Code, &discountType, &r.Value, &r.MaxDiscount, &r.MinOrderAmount, &r.Description,
		&r.ValidFrom, &r.ValidUntil, &r.MaxUses, &r.Uses, &r.Active, &r.CreatedAt,
	)
	r.DiscountType = coupon.DiscountType(discountType)
	return r, err
}
