package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
)

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	var f inventory.Filter
	for _, err := range []error{
		queryBool(r, "low_stock", &f.LowStockOnly),
		queryInt(r, "limit", &f.Limit),
		queryInt(r, "offset", &f.Offset),
	} {
		if err != nil {
			fail(w, r, err)
			return
		}
	}
	stock, err := h.svc.Inventory.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, stock, encodeStock)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Inventory.Get(r.Context(), r.PathValue("variantID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStock(e, *s) })
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var adj inventory.Adjustment
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity", "low_stock_threshold":
			n, err := d.Int()
			if err != nil {
				return err
			}
			if key == "quantity" {
				adj.Quantity = &n
			} else {
				adj.LowStockThreshold = &n
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	s, err := h.svc.Inventory.Adjust(r.Context(), r.PathValue("variantID"), adj)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStock(e, *s) })
}

func (h *Handler) applyStock(w http.ResponseWriter, r *http.Request) {
	op := inventory.Op(r.PathValue("op"))
	if !op.Valid() {
		writeError(w, http.StatusNotFound, "unknown ledger operation "+string(op))
		return
	}
	var qty int
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	s, err := h.svc.Inventory.Apply(r.Context(), op, r.PathValue("variantID"), qty)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStock(e, *s) })
}

func encodeStock(e *jx.Encoder, s inventory.Stock) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "variant_id", s.VariantID)
		str(e, "sku", s.SKU)
		integer(e, "quantity", s.Quantity)
		integer(e, "reserved", s.Reserved)
		integer(e, "available", s.Available())
		integer(e, "low_stock_threshold", s.LowStockThreshold)
		boolean(e, "is_low_stock", s.IsLowStock())
		boolean(e, "is_out_of_stock", s.IsOutOfStock())
		timestamp(e, "updated_at", s.UpdatedAt)
	})
}
