package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/events"
)

// LineRequest is a requested variant and quantity.
type LineRequest struct {
	VariantID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items      []LineRequest
	CouponCode string
	GuestEmail string
	GuestName  string
	Shipping   Address
	Notes      string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Discount *coupon.Discount
	Shipping string
}

// Place validates the cart, snapshots prices, applies the coupon and
// shipping, then reserves stock and stores the order in one transaction.
func (s *Service) Place(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	lines, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.GuestEmail) == "" {
		return nil, ErrGuestEmailRequired
	}

	ctx, span := s.tracer.Start(ctx, "order.Place", trace.WithAttributes(
		attribute.Int("lines", len(lines)),
	))
	defer span.End()

	// Batch fetch all variants in a single query.
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.VariantID
	}
	fetched, err := s.variants.GetVariants(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	byID := make(map[string]catalog.Variant, len(fetched))
	for _, v := range fetched {
		byID[v.ID] = v
	}

	now := s.now()
	o := &Order{
		ID:         uuid.NewString(),
		Reference:  newReference(),
		Status:     StatusPendingPayment,
		GuestEmail: strings.TrimSpace(req.GuestEmail),
		GuestName:  strings.TrimSpace(req.GuestName),
		Shipping:   req.Shipping,
		Notes:      req.Notes,
		Items:      make([]Item, 0, len(lines)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		v, ok := byID[l.VariantID]
		if !ok || !v.IsActive {
			return nil, &VariantNotFoundError{VariantID: l.VariantID}
		}
		price := v.EffectivePrice()
		line := price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		o.Items = append(o.Items, Item{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			VariantID:   v.ID,
			ProductName: v.ProductName,
			VariantName: v.Name,
			SKU:         v.SKU,
			UnitPrice:   price,
			Quantity:    l.Quantity,
			Subtotal:    line,
		})
		subtotal = subtotal.Add(line)
	}

	// Apply coupon discount when a code is provided.
	var discount *coupon.Discount
	discountAmount := decimal.Zero
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		discount, err = s.coupons.Validate(ctx, code, subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discountAmount = discount.Amount
		o.CouponCode = code
	}

	quote, err := s.shipping.Calculate(ctx, req.Shipping.City, req.Shipping.Department, subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "calculate shipping")
	}

	// Total = max(0, subtotal - discount) + shipping, rounded to 2 decimal places.
	net := subtotal.Sub(discountAmount)
	if net.IsNegative() {
		net = decimal.Zero
	}
	o.Subtotal = subtotal.Round(2)
	o.DiscountAmount = discountAmount.Round(2)
	o.ShippingAmount = quote.Price.Round(2)
	o.Total = net.Add(quote.Price).Round(2)

	var movements []inventory.Movement
	if err := s.uow.InOrderTx(ctx, func(ctx context.Context, tx Tx) error {
		if o.CouponCode != "" {
			if err := tx.Redeem(ctx, o.CouponCode); err != nil {
				return errors.Wrap(err, "redeem coupon")
			}
		}
		movements = movements[:0]
		for _, it := range sortedByVariant(o.Items) {
			m, err := s.ledger.Reserve(ctx, tx, it.VariantID, it.Quantity)
			if err != nil {
				return errors.Wrapf(err, "reserve %s", it.SKU)
			}
			movements = append(movements, m)
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return nil
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("reference", o.Reference),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.Total.StringFixed(2)),
	)
	evs := append([]events.Event{events.OrderPlaced(now, o.ID, o.Reference, o.Total)},
		inventory.LowStockEvents(now, movements)...)
	s.publish(ctx, evs)

	return &PlaceOrderResult{
		Order:    o,
		Discount: discount,
		Shipping: quote.Message,
	}, nil
}

// mergeLines validates quantities and folds repeated variants into one line,
// keeping first-seen order.
func mergeLines(items []LineRequest) ([]LineRequest, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	idx := make(map[string]int, len(items))
	out := make([]LineRequest, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{VariantID: it.VariantID}
		}
		if it.VariantID == "" {
			return nil, &VariantNotFoundError{}
		}
		if i, ok := idx[it.VariantID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.VariantID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

// newReference returns the payment gateway reference of a new order.
func newReference() string {
	id := uuid.New()
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}
