package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a coupon code against an order subtotal and returns
// the computed discount. Validation does not consume a use.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error)
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and applying them via the Apply function.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon rule for the given code, checks temporal
// validity, usage limits and the order minimum, then applies it.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	rule, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !rule.Active {
		return nil, ErrInvalidCoupon
	}

	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	if subtotal.LessThan(rule.MinOrderAmount) {
		return nil, ErrMinimumNotReached
	}

	d, err := Apply(rule, subtotal)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Service administers coupons.
type Service struct {
	repo Repository
	*RepoValidator
}

// NewService creates a coupon Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, RepoValidator: NewRepoValidator(repo)}
}

// List returns all coupons.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	return s.repo.List(ctx)
}

// Create validates and stores a new coupon. Codes are stored upper-cased.
func (s *Service) Create(ctx context.Context, r *Rule) error {
	r.Code = NormalizeCode(r.Code)
	if err := ValidateRule(r); err != nil {
		return err
	}
	r.Uses = 0
	r.CreatedAt = s.now()
	if err := s.repo.Create(ctx, r); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

// Update applies patch to the coupon with code. Uses already consumed are
// kept, so lowering MaxUses below them exhausts the coupon.
func (s *Service) Update(ctx context.Context, code string, patch RulePatch) (*Rule, error) {
	r, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if errors.Is(err, ErrInvalidCoupon) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon")
	}
	patch.apply(r)
	if err := ValidateRule(r); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, errors.Wrapf(err, "update coupon %s", r.Code)
	}
	return r, nil
}

// Delete removes a coupon. Orders keep the code they were placed with.
func (s *Service) Delete(ctx context.Context, code string) error {
	if err := s.repo.Delete(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrapf(err, "delete coupon %s", code)
	}
	return nil
}
