// Package inventory implements the per-variant stock ledger.
//
// Every variant has one Stock row holding the physical quantity and the
// quantity reserved by unpaid orders. The four ledger operations (reserve,
// release, confirm, restore) only ever run against a row that the caller
// has locked for the duration of its transaction.
package inventory

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// DefaultLowStockThreshold is applied to stock rows created without an
// explicit threshold.
const DefaultLowStockThreshold = 5

var (
	// ErrInvalidQuantity is returned for ledger operations with qty <= 0.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrNotFound is returned when a variant has no stock row.
	ErrNotFound = errors.New("stock not found")
)

// InsufficientStockError is returned by Reserve when fewer units are
// available than requested. The stock row is left unchanged.
type InsufficientStockError struct {
	VariantID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: available %d, requested %d",
		e.VariantID, e.Available, e.Requested)
}

// Op names a ledger operation.
type Op string

const (
	OpReserve Op = "reserve"
	OpRelease Op = "release"
	OpConfirm Op = "confirm"
	OpRestore Op = "restore"
)

// Valid reports whether op is one of the known ledger operations.
func (op Op) Valid() bool {
	switch op {
	case OpReserve, OpRelease, OpConfirm, OpRestore:
		return true
	}
	return false
}

// Stock is the inventory record of a single variant.
type Stock struct {
	VariantID         string
	SKU               string
	Quantity          int
	Reserved          int
	LowStockThreshold int
	UpdatedAt         time.Time
}

// Available is the quantity that can still be reserved, never negative.
func (s Stock) Available() int {
	return max(0, s.Quantity-s.Reserved)
}

// IsLowStock reports whether the variant is in stock but at or below its
// threshold.
func (s Stock) IsLowStock() bool {
	a := s.Available()
	return a > 0 && a <= s.LowStockThreshold
}

// IsOutOfStock reports whether nothing is available.
func (s Stock) IsOutOfStock() bool {
	return s.Available() == 0
}

// CheckAvailability reports whether qty units can be reserved.
func (s Stock) CheckAvailability(qty int) bool {
	return s.Available() >= qty
}

// Reserve holds qty units for an unpaid order.
func (s *Stock) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if a := s.Available(); a < qty {
		return &InsufficientStockError{VariantID: s.VariantID, Available: a, Requested: qty}
	}
	s.Reserved += qty
	return nil
}

// ReleaseReservation gives back a reservation. Over-release clamps at zero.
func (s *Stock) ReleaseReservation(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.Reserved = max(0, s.Reserved-qty)
	return nil
}

// ConfirmSale turns a reservation into a sale: both counters drop by qty,
// each clamped at zero.
func (s *Stock) ConfirmSale(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.Quantity = max(0, s.Quantity-qty)
	s.Reserved = max(0, s.Reserved-qty)
	return nil
}

// Restore puts sold units back on the shelf.
func (s *Stock) Restore(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.Quantity += qty
	return nil
}

// Apply runs op against the stock.
func (s *Stock) Apply(op Op, qty int) error {
	switch op {
	case OpReserve:
		return s.Reserve(qty)
	case OpRelease:
		return s.ReleaseReservation(qty)
	case OpConfirm:
		return s.ConfirmSale(qty)
	case OpRestore:
		return s.Restore(qty)
	default:
		return errors.Errorf("unknown ledger operation %q", op)
	}
}
