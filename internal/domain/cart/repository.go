package cart

import "context"

type Repository interface {
	// AddItem creates the row for productID or increments an existing one.
	AddItem(ctx context.Context, userID int64, productID int64, quantity int64) (*Item, error)
	// SetQuantity overwrites the quantity of an existing row.
	SetQuantity(ctx context.Context, userID int64, productID int64, quantity int64) (*Item, error)
	DeleteItem(ctx context.Context, userID int64, itemID string) error
	ListItems(ctx context.Context, userID int64) ([]Item, error)
}
