package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPendingPayment    Status = "pending_payment"
	StatusPaymentProcessing Status = "payment_processing"
	StatusPaid              Status = "paid"
	StatusPreparing         Status = "preparing"
	StatusShipped           Status = "shipped"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

var (
	// ErrUnknownStatus is returned for a status outside the enumeration.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrRefundStatus is returned when a refund status is requested directly;
	// those are only reached through refund approval.
	ErrRefundStatus = errors.New("refund statuses are set by refund approval")
)

// IllegalTransitionError is returned when the transition table does not
// allow moving an order from From to To.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// transitions is the single source of truth for order status changes.
var transitions = map[Status][]Status{
	StatusPendingPayment:    {StatusPaymentProcessing, StatusPaid, StatusCancelled},
	StatusPaymentProcessing: {StatusPendingPayment, StatusPaid, StatusCancelled},
	StatusPaid:              {StatusPreparing, StatusCancelled, StatusRefunded, StatusPartiallyRefunded},
	StatusPreparing:         {StatusShipped, StatusCancelled, StatusRefunded, StatusPartiallyRefunded},
	StatusShipped:           {StatusDelivered, StatusRefunded, StatusPartiallyRefunded},
	StatusDelivered:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded},
	StatusCancelled:         nil,
	StatusRefunded:          nil,
}

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{
	StatusPendingPayment,
	StatusPaymentProcessing,
	StatusPaid,
	StatusPreparing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
	StatusPartiallyRefunded,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// HoldsReservation reports whether stock for an order in s is still only
// reserved, not yet sold.
func (s Status) HoldsReservation() bool {
	return s == StatusPendingPayment || s == StatusPaymentProcessing
}

// Cancellable reports whether an order in s may be cancelled.
func (s Status) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

// Refundable reports whether refunds may be requested for an order in s.
func (s Status) Refundable() bool {
	return CanTransition(s, StatusPartiallyRefunded)
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to against the table.
func Transition(from, to Status) error {
	if !to.Valid() {
		return errors.Wrapf(ErrUnknownStatus, "%q", to)
	}
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
