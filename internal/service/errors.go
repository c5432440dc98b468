package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateProduct     = errors.New("product already exists")

	ErrAlreadyCancelled = errors.New("sale already cancelled")
	ErrMissingItems     = errors.New("sale has no items")
	ErrAlreadyPaid      = errors.New("sale already paid")
	ErrNotCreditSale    = errors.New("sale is not an unpaid credit sale")

	ErrAlreadyReceived   = errors.New("purchase order already received")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownProduct    = errors.New("unknown product")

	ErrSessionClosed = errors.New("stock count session is closed")
	ErrOutOfScope    = errors.New("product is outside the count scope")
	ErrNotCounted    = errors.New("product has not been counted")

	ErrAlreadyOpen      = errors.New("a cash drawer session is already open")
	ErrNoActiveSession  = errors.New("no active cash drawer session")
	ErrInvalidDirection = errors.New("invalid cash direction")
)

type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): requested %d, available %d", e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsValidation reports whether err rejects the input itself.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrEmptyCart, ErrInvalidAmount, ErrInvalidPaymentMethod,
		ErrInsufficientStock, ErrMissingItems, ErrOutOfScope, ErrNotCounted, ErrInvalidDirection,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err rejects the operation in the record's current state.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrDuplicateProduct, ErrAlreadyCancelled, ErrAlreadyPaid, ErrNotCreditSale,
		ErrAlreadyReceived, ErrInvalidTransition, ErrSessionClosed, ErrAlreadyOpen, ErrNoActiveSession,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
