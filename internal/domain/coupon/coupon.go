package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a supported discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumNotReached is returned when the subtotal is below the coupon minimum.
	ErrMinimumNotReached = errors.New("order subtotal below coupon minimum")
	// ErrCouponExists is returned when creating a coupon whose code is taken.
	ErrCouponExists = errors.New("coupon code already exists")
	// ErrInvalidRule is returned when a coupon definition is malformed.
	ErrInvalidRule = errors.New("invalid coupon rule")
	// ErrNotFound is returned by administration calls for an unknown code.
	ErrNotFound = errors.New("coupon not found")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// A zero MaxUses means unlimited uses; a zero MaxDiscount means uncapped.
type Rule struct {
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MaxDiscount    decimal.Decimal
	MinOrderAmount decimal.Decimal
	Description    string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	MaxUses        int
	Uses           int
	Active         bool
	CreatedAt      time.Time
}

// Discount holds the computed discount amount and a human-readable description.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Repository provides lookup and administration of coupon rules. Update
// leaves the use counter alone; Update and Delete return ErrNotFound for an
// unknown code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, code string) error
}

// RulePatch is a partial coupon update. Nil fields keep their value;
// ClearValidFrom and ClearValidUntil open the validity window.
type RulePatch struct {
	DiscountType    *DiscountType
	Value           *decimal.Decimal
	MaxDiscount     *decimal.Decimal
	MinOrderAmount  *decimal.Decimal
	Description     *string
	ValidFrom       *time.Time
	ClearValidFrom  bool
	ValidUntil      *time.Time
	ClearValidUntil bool
	MaxUses         *int
	Active          *bool
}

func (p RulePatch) apply(r *Rule) {
	if p.DiscountType != nil {
		r.DiscountType = *p.DiscountType
	}
	if p.Value != nil {
		r.Value = *p.Value
	}
	if p.MaxDiscount != nil {
		r.MaxDiscount = *p.MaxDiscount
	}
	if p.MinOrderAmount != nil {
		r.MinOrderAmount = *p.MinOrderAmount
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.MaxUses != nil {
		r.MaxUses = *p.MaxUses
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
	switch {
	case p.ClearValidFrom:
		r.ValidFrom = nil
	case p.ValidFrom != nil:
		r.ValidFrom = p.ValidFrom
	}
	switch {
	case p.ClearValidUntil:
		r.ValidUntil = nil
	case p.ValidUntil != nil:
		r.ValidUntil = p.ValidUntil
	}
}

// Redeemer consumes one use of a coupon. Implementations must fail with
// ErrCouponUsageLimitReached when the limit is hit, checked atomically with
// the increment.
type Redeemer interface {
	Redeem(ctx context.Context, code string) error
}
