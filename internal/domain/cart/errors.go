package cart

import "errors"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrLineNotSynced   = errors.New("cart item not yet acknowledged by server")
)
