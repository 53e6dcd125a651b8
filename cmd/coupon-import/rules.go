package main

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/coupon"
)

// campaign is the discount applied to codes starting with a prefix.
type campaign struct {
	prefix       string
	discountType coupon.DiscountType
	value        string
	maxDiscount  string
	minOrder     string
	description  string
}

// Longer prefixes first so the most specific campaign wins.
var campaigns = []campaign{
	{"BDAYGLOW", coupon.DiscountPercentage, "20", "40", "0", "Birthday glow: 20% off, up to $40"},
	{"SKINCARE", coupon.DiscountPercentage, "15", "0", "50", "Skincare week: 15% off orders over $50"},
	{"LIPSYNC", coupon.DiscountFixed, "8", "0", "30", "$8 off lip products over $30"},
	{"GLOW", coupon.DiscountPercentage, "10", "25", "0", "Glow partner: 10% off, up to $25"},
}

// ruleSettings are the import-wide limits applied to every coupon.
type ruleSettings struct {
	defaultPercent decimal.Decimal
	maxUses        int
	validFor       time.Duration
	now            time.Time
}

// ruleFor builds the coupon rule for an imported code.
func ruleFor(code string, s ruleSettings) coupon.Rule {
	r := coupon.Rule{
		Code:         code,
		DiscountType: coupon.DiscountPercentage,
		Value:        s.defaultPercent,
		Description:  "Partner promo code: " + s.defaultPercent.String() + "% off",
		MaxUses:      s.maxUses,
		Active:       true,
		CreatedAt:    s.now,
	}
	for _, c := range campaigns {
		if !strings.HasPrefix(code, c.prefix) {
			continue
		}
		r.DiscountType = c.discountType
		r.Value = decimal.RequireFromString(c.value)
		r.MaxDiscount = decimal.RequireFromString(c.maxDiscount)
		r.MinOrderAmount = decimal.RequireFromString(c.minOrder)
		r.Description = c.description
		break
	}
	from := s.now
	r.ValidFrom = &from
	if s.validFor > 0 {
		until := s.now.Add(s.validFor)
		r.ValidUntil = &until
	}
	return r
}
