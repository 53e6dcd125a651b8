package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/domain/refund"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
	"github.com/xenking/beauty-shop/pkg/idempotency"
)

// sentinels maps domain sentinel errors to statuses. With detail set the
// full wrapped message is returned, otherwise only the sentinel text.
var sentinels = []struct {
	err    error
	status int
	detail bool
}{
	{catalog.ErrNotFound, http.StatusNotFound, false},
	{catalog.ErrConflict, http.StatusConflict, false},
	{inventory.ErrNotFound, http.StatusNotFound, false},
	{inventory.ErrInvalidQuantity, http.StatusBadRequest, false},
	{inventory.ErrInvalidAdjustment, http.StatusBadRequest, true},
	{order.ErrNotFound, http.StatusNotFound, false},
	{order.ErrEmptyItems, http.StatusBadRequest, false},
	{order.ErrGuestEmailRequired, http.StatusBadRequest, false},
	{order.ErrUnknownStatus, http.StatusBadRequest, true},
	{order.ErrRefundStatus, http.StatusBadRequest, false},
	{refund.ErrNotFound, http.StatusNotFound, false},
	{refund.ErrEmptyItems, http.StatusBadRequest, false},
	{coupon.ErrNotFound, http.StatusNotFound, false},
	{coupon.ErrInvalidCoupon, http.StatusUnprocessableEntity, false},
	{coupon.ErrCouponExpired, http.StatusUnprocessableEntity, false},
	{coupon.ErrCouponUsageLimitReached, http.StatusUnprocessableEntity, false},
	{coupon.ErrMinimumNotReached, http.StatusUnprocessableEntity, false},
	{coupon.ErrCouponExists, http.StatusConflict, false},
	{coupon.ErrInvalidRule, http.StatusBadRequest, true},
	{shipping.ErrInvalidRate, http.StatusBadRequest, true},
	{shipping.ErrDefaultExists, http.StatusConflict, false},
	{idempotency.ErrInProgress, http.StatusConflict, false},
}

// fail writes the response for err. Unknown errors are logged and answered
// with 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad          *badRequestError
		validation   *catalog.ValidationError
		insufficient *inventory.InsufficientStockError
		transition   *order.IllegalTransitionError
		variant      *order.VariantNotFoundError
		quantity     *order.InvalidQuantityError
		overRefund   *refund.OverRefundError
		refundState  *refund.IllegalTransitionError
		notRefund    *refund.OrderNotRefundableError
		notInOrder   *refund.ItemNotInOrderError
		refundQty    *refund.InvalidQuantityError
	)
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.Error())
		return
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
		return
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				integer(e, "code", http.StatusConflict)
				str(e, "message", insufficient.Error())
				str(e, "variant_id", insufficient.VariantID)
				integer(e, "available", insufficient.Available)
				integer(e, "requested", insufficient.Requested)
			})
		})
		return
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, transition.Error())
		return
	case errors.As(err, &variant):
		writeError(w, http.StatusUnprocessableEntity, variant.Error())
		return
	case errors.As(err, &quantity):
		writeError(w, http.StatusBadRequest, quantity.Error())
		return
	case errors.As(err, &overRefund):
		writeError(w, http.StatusUnprocessableEntity, overRefund.Error())
		return
	case errors.As(err, &refundState):
		writeError(w, http.StatusConflict, refundState.Error())
		return
	case errors.As(err, &notRefund):
		writeError(w, http.StatusConflict, notRefund.Error())
		return
	case errors.As(err, &notInOrder):
		writeError(w, http.StatusBadRequest, notInOrder.Error())
		return
	case errors.As(err, &refundQty):
		writeError(w, http.StatusBadRequest, refundQty.Error())
		return
	}

	for _, s := range sentinels {
		if !errors.Is(err, s.err) {
			continue
		}
		msg := s.err.Error()
		if s.detail {
			msg = err.Error()
		}
		writeError(w, s.status, msg)
		return
	}

	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
