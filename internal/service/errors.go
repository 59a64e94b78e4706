package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not allowed to access this resource")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrInvalidTransition  = errors.New("order status transition not allowed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCategoryInUse      = errors.New("cannot delete category that is being used by products")
	ErrProductInUse       = errors.New("cannot delete product that is referenced by carts or orders")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPersistence        = errors.New("persistence failure")
)

// InsufficientStockError names the product that blocked a cart change or checkout
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, only %d left",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InvalidTransitionError carries the rejected edge of the order state machine
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// persistence wraps a storage error so callers can match ErrPersistence
func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// lookup maps a missing row to ErrNotFound and anything else to ErrPersistence
func lookup(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return persistence(op, err)
}

// passthrough keeps domain errors intact and wraps the rest
func passthrough(op string, err error) error {
	for _, domain := range []error{
		ErrNotFound, ErrUnauthorized, ErrInsufficientStock, ErrEmptyCart,
		ErrInvalidQuantity, ErrInvalidStatus, ErrInvalidTransition, ErrInvalidInput,
		ErrCategoryInUse, ErrProductInUse, ErrConflict, ErrInvalidCredentials, ErrPersistence,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return persistence(op, err)
}

// resultLabel turns an operation error into a metric label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
