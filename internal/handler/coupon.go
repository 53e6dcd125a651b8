package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/coupon"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.Coupons.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, rules, encodeCoupon)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	rule := coupon.Rule{Active: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			rule.Code, err = d.Str()
		case "discount_type":
			var t string
			t, err = d.Str()
			rule.DiscountType = coupon.DiscountType(t)
		case "value":
			rule.Value, err = decodeMoney(d, key)
		case "max_discount":
			rule.MaxDiscount, err = decodeMoney(d, key)
		case "min_order_amount":
			rule.MinOrderAmount, err = decodeMoney(d, key)
		case "description":
			rule.Description, err = d.Str()
		case "valid_from":
			rule.ValidFrom, err = decodeOptTime(d, key)
		case "valid_until":
			rule.ValidUntil, err = decodeOptTime(d, key)
		case "max_uses":
			rule.MaxUses, err = d.Int()
		case "active":
			rule.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.svc.Coupons.Create(r.Context(), &rule)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, rule) })
}

// updateCoupon patches a coupon. A null valid_from or valid_until removes
// that bound; the code and the use counter cannot be changed.
func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var patch coupon.RulePatch
	amount := func(d *jx.Decoder, key string) (*decimal.Decimal, error) {
		return decodePtr(d, func(d *jx.Decoder) (decimal.Decimal, error) { return decodeMoney(d, key) })
	}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "discount_type":
			var t string
			if t, err = d.Str(); err == nil {
				dt := coupon.DiscountType(t)
				patch.DiscountType = &dt
			}
		case "value":
			patch.Value, err = amount(d, key)
		case "max_discount":
			patch.MaxDiscount, err = amount(d, key)
		case "min_order_amount":
			patch.MinOrderAmount, err = amount(d, key)
		case "description":
			patch.Description, err = decodePtr(d, (*jx.Decoder).Str)
		case "valid_from":
			patch.ValidFrom, err = decodeOptTime(d, key)
			patch.ClearValidFrom = err == nil && patch.ValidFrom == nil
		case "valid_until":
			patch.ValidUntil, err = decodeOptTime(d, key)
			patch.ClearValidUntil = err == nil && patch.ValidUntil == nil
		case "max_uses":
			patch.MaxUses, err = decodePtr(d, (*jx.Decoder).Int)
		case "active":
			patch.Active, err = decodePtr(d, (*jx.Decoder).Bool)
		case "code", "uses":
			err = badRequest("%s: read only", key)
		default:
			err = d.Skip()
		}
		return err
	})
	var rule *coupon.Rule
	if err == nil {
		rule, err = h.svc.Coupons.Update(r.Context(), r.PathValue("code"), patch)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, *rule) })
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Coupons.Delete(r.Context(), r.PathValue("code")); err != nil {
		fail(w, r, err)
		return
	}
	writeNoContent(w)
}

// validateCoupon previews the discount of a code for a subtotal without
// consuming a use.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code     string
		subtotal decimal.Decimal
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "subtotal":
			subtotal, err = decodeMoney(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	discount, err := h.svc.Coupons.Validate(r.Context(), coupon.NormalizeCode(code), subtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			boolean(e, "valid", true)
			str(e, "code", discount.Code)
			money(e, "discount", discount.Amount)
			str(e, "description", discount.Description)
		})
	})
}

func encodeCoupon(e *jx.Encoder, c coupon.Rule) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "code", c.Code)
		str(e, "discount_type", string(c.DiscountType))
		money(e, "value", c.Value)
		money(e, "max_discount", c.MaxDiscount)
		money(e, "min_order_amount", c.MinOrderAmount)
		str(e, "description", c.Description)
		optTimestamp(e, "valid_from", c.ValidFrom)
		optTimestamp(e, "valid_until", c.ValidUntil)
		integer(e, "max_uses", c.MaxUses)
		integer(e, "uses", c.Uses)
		boolean(e, "active", c.Active)
	})
}
