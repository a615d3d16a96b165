package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when checkout is attempted with no cart items.
var ErrEmptyCart = errors.New("cart is empty")

// ErrForbidden is returned when the caller is neither the order's owner nor
// an admin.
var ErrForbidden = errors.New("access denied")

// ErrPaymentVerification is returned when a supplied payment or webhook
// signature does not match the expected HMAC. Never retried.
var ErrPaymentVerification = errors.New("payment verification failed")

// ErrGateway is returned when the payment gateway cannot be reached or
// rejects a request, mapped to 502 at the API layer.
var ErrGateway = errors.New("payment gateway unavailable")

// ProductUnavailableError names a cart product that is missing or inactive.
type ProductUnavailableError struct {
	ProductID int64
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("product %q is no longer available", e.Name)
	}
	return fmt.Sprintf("product %d is no longer available", e.ProductID)
}

// InsufficientStockError names a product whose live stock cannot cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// PriceMismatchError reports a client-submitted items price that diverges
// from the live catalog recomputation beyond the tolerance.
type PriceMismatchError struct {
	Submitted  decimal.Decimal
	Calculated decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch: submitted %s, calculated %s",
		e.Submitted.StringFixed(2), e.Calculated.StringFixed(2))
}

// InvalidTransitionError reports a status change the state machine forbids.
type InvalidTransitionError struct {
	OrderID int64
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}
