package orders

import "errors"

var (
	// ErrEmptyOrder indicates a submission without items.
	ErrEmptyOrder = errors.New("orders: order has no items")
	// ErrInvalidQuantity indicates a line with a non-positive quantity.
	ErrInvalidQuantity = errors.New("orders: quantity must be positive")
	// ErrUnknownProduct indicates a line referencing a missing product.
	ErrUnknownProduct = errors.New("orders: unknown product")
	// ErrPeriodClosed indicates no period currently accepts orders.
	ErrPeriodClosed = errors.New("orders: order collection is closed")
	// ErrNotFound indicates the order or client does not exist.
	ErrNotFound = errors.New("orders: not found")
	// ErrOrderLocked indicates the order's period has been closed.
	ErrOrderLocked = errors.New("orders: order is locked")
	// ErrInvalidTransition indicates the status change is not allowed.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	// ErrDuplicateSubmission indicates a replayed idempotency key.
	ErrDuplicateSubmission = errors.New("orders: duplicate submission")
)
