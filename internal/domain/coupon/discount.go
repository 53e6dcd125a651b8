package coupon

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount of rule for the given subtotal. The result is
// rounded to two places and never exceeds the subtotal.
func Apply(rule *Rule, subtotal decimal.Decimal) (Discount, error) {
	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, rule.MaxDiscount)
		}
	case DiscountFixed:
		amount = decimal.Min(rule.Value, subtotal)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Discount{
		Code:        rule.Code,
		Amount:      amount.Round(2),
		Description: rule.Description,
	}, nil
}

// NormalizeCode returns the canonical form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRule checks a coupon definition before it is stored.
func ValidateRule(r *Rule) error {
	switch {
	case NormalizeCode(r.Code) == "":
		return errors.Wrap(ErrInvalidRule, "code required")
	case !r.DiscountType.Valid():
		return errors.Wrapf(ErrInvalidRule, "unsupported discount type %q", r.DiscountType)
	case !r.Value.IsPositive():
		return errors.Wrap(ErrInvalidRule, "value must be positive")
	case r.DiscountType == DiscountPercentage && r.Value.GreaterThan(hundred):
		return errors.Wrap(ErrInvalidRule, "percentage cannot exceed 100")
	case r.MaxDiscount.IsNegative(), r.MinOrderAmount.IsNegative():
		return errors.Wrap(ErrInvalidRule, "amounts cannot be negative")
	case r.MaxUses < 0:
		return errors.Wrap(ErrInvalidRule, "max uses cannot be negative")
	case r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom):
		return errors.Wrap(ErrInvalidRule, "valid_until before valid_from")
	}
	return nil
}
