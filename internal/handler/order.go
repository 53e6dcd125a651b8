package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/order"
)

// IdempotencyKeyHeader carries the client's retry key on checkout.
const IdempotencyKeyHeader = "Idempotency-Key"

func decodePlaceOrder(d *jx.Decoder, key string, req *order.PlaceOrderRequest) error {
	var err error
	switch key {
	case "items":
		err = d.Arr(func(d *jx.Decoder) error {
			var l order.LineRequest
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "variant_id":
					l.VariantID, err = d.Str()
				case "quantity":
					l.Quantity, err = d.Int()
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			req.Items = append(req.Items, l)
			return nil
		})
	case "coupon_code":
		req.CouponCode, err = d.Str()
	case "guest_email":
		req.GuestEmail, err = d.Str()
	case "guest_name":
		req.GuestName, err = d.Str()
	case "notes":
		req.Notes, err = d.Str()
	case "shipping_address":
		a := &req.Shipping
		err = d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				a.Name, err = d.Str()
			case "address":
				a.Line, err = d.Str()
			case "city":
				a.City, err = d.Str()
			case "department":
				a.Department, err = d.Str()
			case "postal_code":
				a.PostalCode, err = d.Str()
			case "phone":
				a.Phone, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	default:
		err = d.Skip()
	}
	return err
}

// placeOrder runs checkout. With an Idempotency-Key a retry of a completed
// request gets the original order back instead of placing a new one.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req order.PlaceOrderRequest
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		return decodePlaceOrder(d, key, &req)
	}); err != nil {
		fail(w, r, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" || h.idempotency == nil {
		h.place(w, r, req)
		return
	}

	orderID, claimed, err := h.idempotency.Begin(ctx, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !claimed {
		o, err := h.svc.Orders.Get(ctx, orderID)
		if err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil) })
		return
	}

	o := h.place(w, r, req)
	lg := zctx.From(ctx)
	if o == nil {
		if err := h.idempotency.Abort(ctx, key); err != nil {
			lg.Warn("Release idempotency key", zap.Error(err))
		}
		return
	}
	if err := h.idempotency.Complete(ctx, key, o.ID); err != nil {
		lg.Warn("Store idempotency result", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// place writes the checkout response and returns the placed order, or nil
// after writing an error.
func (h *Handler) place(w http.ResponseWriter, r *http.Request, req order.PlaceOrderRequest) *order.Order {
	res, err := h.svc.Orders.Place(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return nil
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, res.Order, res) })
	return res.Order
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := order.Filter{Status: order.Status(r.URL.Query().Get("status"))}
	for _, err := range []error{
		queryInt(r, "limit", &f.Limit),
		queryInt(r, "offset", &f.Offset),
	} {
		if err != nil {
			fail(w, r, err)
			return
		}
	}
	orders, err := h.svc.Orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, orders, func(e *jx.Encoder, o order.Order) { encodeOrder(e, &o, nil) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Get(r.Context(), r.PathValue("id"))
	h.writeOrder(w, r, o, err)
}

func (h *Handler) startPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.StartPayment(r.Context(), r.PathValue("id"))
	h.writeOrder(w, r, o, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Cancel(r.Context(), r.PathValue("id"))
	h.writeOrder(w, r, o, err)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.svc.Orders.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(status))
	h.writeOrder(w, r, o, err)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	var txID string
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "transaction_id" {
			return d.Skip()
		}
		var err error
		txID, err = d.Str()
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.svc.Orders.MarkPaid(r.Context(), r.PathValue("id"), txID)
	h.writeOrder(w, r, o, err)
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil) })
}

// encodeOrder writes an order. Checkout responses also carry the coupon and
// shipping messages.
func encodeOrder(e *jx.Encoder, o *order.Order, placed *order.PlaceOrderResult) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "reference", o.Reference)
		str(e, "status", string(o.Status))
		str(e, "guest_email", o.GuestEmail)
		str(e, "guest_name", o.GuestName)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					encodeOrderItem(e, it)
				}
			})
		})
		money(e, "subtotal", o.Subtotal)
		money(e, "discount_amount", o.DiscountAmount)
		money(e, "shipping_amount", o.ShippingAmount)
		money(e, "total", o.Total)
		if o.CouponCode != "" {
			str(e, "coupon_code", o.CouponCode)
		}
		e.Field("shipping_address", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				a := o.Shipping
				str(e, "name", a.Name)
				str(e, "address", a.Line)
				str(e, "city", a.City)
				str(e, "department", a.Department)
				str(e, "postal_code", a.PostalCode)
				str(e, "phone", a.Phone)
			})
		})
		if o.PaymentTransactionID != "" {
			str(e, "payment_transaction_id", o.PaymentTransactionID)
		}
		if o.Notes != "" {
			str(e, "notes", o.Notes)
		}
		timestamp(e, "created_at", o.CreatedAt)
		timestamp(e, "updated_at", o.UpdatedAt)
		if placed == nil {
			return
		}
		if placed.Discount != nil {
			str(e, "discount_description", placed.Discount.Description)
		}
		str(e, "shipping_message", placed.Shipping)
	})
}

func encodeOrderItem(e *jx.Encoder, it order.Item) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", it.ID)
		str(e, "variant_id", it.VariantID)
		str(e, "product_name", it.ProductName)
		str(e, "variant_name", it.VariantName)
		str(e, "sku", it.SKU)
		money(e, "unit_price", it.UnitPrice)
		integer(e, "quantity", it.Quantity)
		integer(e, "refunded_quantity", it.RefundedQuantity)
		money(e, "subtotal", it.Subtotal)
	})
}
