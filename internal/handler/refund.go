package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/beauty-shop/internal/domain/refund"
)

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request) {
	var req refund.CreateRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			req.OrderID, err = d.Str()
		case "reason":
			req.Reason, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var it refund.Item
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "order_item_id":
						it.OrderItemID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					case "reason":
						it.Reason, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.OrderID == "" {
		fail(w, r, badRequest("order_id: required"))
		return
	}
	rf, err := h.svc.Refunds.Create(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeRefund(e, *rf) })
}

func (h *Handler) getRefund(w http.ResponseWriter, r *http.Request) {
	rf, err := h.svc.Refunds.Get(r.Context(), r.PathValue("id"))
	h.writeRefund(w, r, rf, err)
}

func (h *Handler) approveRefund(w http.ResponseWriter, r *http.Request) {
	rf, err := h.svc.Refunds.Approve(r.Context(), r.PathValue("id"))
	h.writeRefund(w, r, rf, err)
}

func (h *Handler) rejectRefund(w http.ResponseWriter, r *http.Request) {
	rf, err := h.svc.Refunds.Reject(r.Context(), r.PathValue("id"))
	h.writeRefund(w, r, rf, err)
}

func (h *Handler) listOrderRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.svc.Refunds.ListByOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, refunds, encodeRefund)
}

func (h *Handler) writeRefund(w http.ResponseWriter, r *http.Request, rf *refund.Refund, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRefund(e, *rf) })
}

func encodeRefund(e *jx.Encoder, rf refund.Refund) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", rf.ID)
		str(e, "order_id", rf.OrderID)
		str(e, "status", string(rf.Status))
		str(e, "reason", rf.Reason)
		money(e, "amount", rf.Amount)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range rf.Items {
					e.Obj(func(e *jx.Encoder) {
						str(e, "id", it.ID)
						str(e, "order_item_id", it.OrderItemID)
						integer(e, "quantity", it.Quantity)
						if it.Reason != "" {
							str(e, "reason", it.Reason)
						}
					})
				}
			})
		})
		optTimestamp(e, "processed_at", rf.ProcessedAt)
		timestamp(e, "created_at", rf.CreatedAt)
	})
}
