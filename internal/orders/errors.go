package orders

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match on these with errors.Is.
var (
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

var (
	ErrDuplicateOrder     = fmt.Errorf("%w: this product is already in your orders", ErrConflict)
	ErrAmountExceedsPrice = fmt.Errorf("%w: offer must not be greater than the product price", ErrConflict)
	ErrOwnProduct         = fmt.Errorf("%w: cannot make an offer on your own product", ErrConflict)
	ErrTerminalOrder      = fmt.Errorf("%w: order is closed", ErrConflict)

	ErrProductUnavailable = fmt.Errorf("%w: this product is no longer available", ErrNotFound)
	ErrProductMissing     = fmt.Errorf("%w: product does not exist", ErrNotFound)
	ErrOrderMissing       = fmt.Errorf("%w: order does not exist", ErrNotFound)

	ErrRoleMismatch = fmt.Errorf("%w: actor is not a participant in this role", ErrUnauthorized)
)
