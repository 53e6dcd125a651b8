package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/shipping"
)

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.svc.Shipping.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, rates, encodeRate)
}

func (h *Handler) createRate(w http.ResponseWriter, r *http.Request) {
	rate := shipping.Rate{IsActive: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			rate.Name, err = d.Str()
		case "city":
			rate.City, err = d.Str()
		case "department":
			rate.Department, err = d.Str()
		case "price":
			rate.Price, err = decodeMoney(d, key)
		case "free_shipping_from":
			rate.FreeShippingFrom, err = decodeOptMoney(d, key)
		case "estimated_days_min":
			rate.EstimatedDaysMin, err = d.Int()
		case "estimated_days_max":
			rate.EstimatedDaysMax, err = d.Int()
		case "is_active":
			rate.IsActive, err = d.Bool()
		case "is_default":
			rate.IsDefault, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.svc.Shipping.Create(r.Context(), &rate)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeRate(e, rate) })
}

func (h *Handler) calculateShipping(w http.ResponseWriter, r *http.Request) {
	var (
		city, department string
		subtotal         decimal.Decimal
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "city":
			city, err = d.Str()
		case "department":
			department, err = d.Str()
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
	q, err := h.svc.Shipping.Calculate(r.Context(), city, department, subtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			money(e, "price", q.Price)
			boolean(e, "is_free", q.IsFree)
			optMoney(e, "free_shipping_from", q.FreeShippingFrom)
			integer(e, "estimated_days_min", q.EstimatedDaysMin)
			integer(e, "estimated_days_max", q.EstimatedDaysMax)
			str(e, "estimated_delivery", q.EstimatedDelivery())
			str(e, "message", q.Message)
			if q.Rate != nil {
				str(e, "rate_name", q.Rate.Name)
			}
		})
	})
}

func encodeRate(e *jx.Encoder, r shipping.Rate) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", r.ID)
		str(e, "name", r.Name)
		str(e, "city", r.City)
		str(e, "department", r.Department)
		money(e, "price", r.Price)
		optMoney(e, "free_shipping_from", r.FreeShippingFrom)
		integer(e, "estimated_days_min", r.EstimatedDaysMin)
		integer(e, "estimated_days_max", r.EstimatedDaysMax)
		boolean(e, "is_active", r.IsActive)
		boolean(e, "is_default", r.IsDefault)
	})
}
