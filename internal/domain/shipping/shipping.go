// Package shipping prices delivery by destination.
package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRate is returned when a rate definition is malformed.
	ErrInvalidRate = errors.New("invalid shipping rate")
	// ErrDefaultExists is returned when a second active default rate is created.
	ErrDefaultExists = errors.New("an active default shipping rate already exists")
)

// Delivery estimate used when no rate covers the destination.
const (
	noCoverageDaysMin = 5
	noCoverageDaysMax = 10
)

// Rate is a delivery price for a city, a whole department (empty City), or
// the fallback default.
type Rate struct {
	ID               string
	Name             string
	City             string
	Department       string
	Price            decimal.Decimal
	FreeShippingFrom *decimal.Decimal
	EstimatedDaysMin int
	EstimatedDaysMax int
	IsActive         bool
	IsDefault        bool
}

// IsFreeFor reports whether subtotal qualifies for free shipping.
func (r *Rate) IsFreeFor(subtotal decimal.Decimal) bool {
	return r.FreeShippingFrom != nil && subtotal.GreaterThanOrEqual(*r.FreeShippingFrom)
}

// Quote is the shipping cost of one destination.
type Quote struct {
	Rate             *Rate
	Price            decimal.Decimal
	IsFree           bool
	FreeShippingFrom *decimal.Decimal
	EstimatedDaysMin int
	EstimatedDaysMax int
	Message          string
}

// EstimatedDelivery renders the delivery window in business days.
func (q Quote) EstimatedDelivery() string {
	if q.EstimatedDaysMin == q.EstimatedDaysMax {
		if q.EstimatedDaysMin == 1 {
			return "1 business day"
		}
		return fmt.Sprintf("%d business days", q.EstimatedDaysMin)
	}
	return fmt.Sprintf("%d to %d business days", q.EstimatedDaysMin, q.EstimatedDaysMax)
}

// Repository stores shipping rates.
type Repository interface {
	ListActive(ctx context.Context) ([]Rate, error)
	List(ctx context.Context) ([]Rate, error)
	Create(ctx context.Context, r *Rate) error
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Select picks the rate for a destination from the active rates: exact city
// first, then a department-wide rate, then the default. It returns nil when
// nothing matches.
func Select(rates []Rate, city, department string) *Rate {
	city, department = normalize(city), normalize(department)

	if city != "" {
		for i := range rates {
			if rates[i].IsActive && normalize(rates[i].City) == city {
				return &rates[i]
			}
		}
	}
	if department != "" {
		for i := range rates {
			r := &rates[i]
			if r.IsActive && r.City == "" && normalize(r.Department) == department {
				return r
			}
		}
	}
	for i := range rates {
		if rates[i].IsActive && rates[i].IsDefault {
			return &rates[i]
		}
	}
	return nil
}

// NewQuote prices subtotal with rate. A nil rate yields the no coverage quote.
func NewQuote(rate *Rate, subtotal decimal.Decimal) Quote {
	if rate == nil {
		return Quote{
			Price:            decimal.Zero,
			EstimatedDaysMin: noCoverageDaysMin,
			EstimatedDaysMax: noCoverageDaysMax,
			Message:          "No shipping coverage for this location. We will contact you.",
		}
	}

	q := Quote{
		Rate:             rate,
		Price:            rate.Price,
		FreeShippingFrom: rate.FreeShippingFrom,
		EstimatedDaysMin: rate.EstimatedDaysMin,
		EstimatedDaysMax: rate.EstimatedDaysMax,
	}
	switch {
	case rate.IsFreeFor(subtotal):
		q.IsFree = true
		q.Price = decimal.Zero
		q.Message = "Free shipping!"
	case rate.FreeShippingFrom != nil:
		remaining := rate.FreeShippingFrom.Sub(subtotal)
		q.Message = fmt.Sprintf("Add $%s more for free shipping", remaining.StringFixed(0))
	default:
		dest := rate.City
		if dest == "" {
			dest = rate.Department
		}
		if dest == "" {
			dest = "your location"
		}
		q.Message = "Shipping to " + dest
	}
	return q
}

// ValidateRate checks a rate definition before it is stored.
func ValidateRate(r *Rate) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return errors.Wrap(ErrInvalidRate, "name required")
	case r.Price.IsNegative():
		return errors.Wrap(ErrInvalidRate, "price cannot be negative")
	case r.FreeShippingFrom != nil && r.FreeShippingFrom.IsNegative():
		return errors.Wrap(ErrInvalidRate, "free shipping threshold cannot be negative")
	case r.EstimatedDaysMin < 0 || r.EstimatedDaysMax < r.EstimatedDaysMin:
		return errors.Wrap(ErrInvalidRate, "invalid delivery window")
	}
	return nil
}
