package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Calculator prices shipping from the stored rates.
type Calculator struct {
	rates Repository
}

// NewCalculator creates a Calculator.
func NewCalculator(rates Repository) *Calculator {
	return &Calculator{rates: rates}
}

// Calculate quotes shipping for a destination and cart subtotal.
func (c *Calculator) Calculate(ctx context.Context, city, department string, subtotal decimal.Decimal) (*Quote, error) {
	rates, err := c.rates.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list shipping rates")
	}

	rate := Select(rates, city, department)
	if rate == nil {
		zctx.From(ctx).Warn("No shipping rate for destination",
			zap.String("city", city),
			zap.String("department", department),
		)
	}
	q := NewQuote(rate, subtotal)
	return &q, nil
}

// List returns every rate.
func (c *Calculator) List(ctx context.Context) ([]Rate, error) {
	return c.rates.List(ctx)
}

// Create validates and stores a rate.
func (c *Calculator) Create(ctx context.Context, r *Rate) error {
	if err := ValidateRate(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := c.rates.Create(ctx, r); err != nil {
		return errors.Wrap(err, "create shipping rate")
	}
	return nil
}
