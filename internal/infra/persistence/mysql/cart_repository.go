package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	domcart "example.com/cartsync/internal/domain/cart"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) AddItem(ctx context.Context, userID int64, productID int64, quantity int64) (*domcart.Item, error) {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO cart_items (id, user_id, product_id, quantity)
        VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)
    `, uuid.NewString(), userID, productID, quantity)
	if err != nil {
		return nil, err
	}
	return r.getByProduct(ctx, userID, productID)
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID int64, productID int64, quantity int64) (*domcart.Item, error) {
	_, err := r.db.ExecContext(ctx, `
        UPDATE cart_items SET quantity = ?
        WHERE user_id = ? AND product_id = ?
    `, quantity, userID, productID)
	if err != nil {
		return nil, err
	}
	// RowsAffected is 0 for an unchanged value, so existence is checked by reading back.
	return r.getByProduct(ctx, userID, productID)
}

func (r *CartRepository) DeleteItem(ctx context.Context, userID int64, itemID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND user_id = ?`, itemID, userID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domcart.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, product_id, quantity
        FROM cart_items
        WHERE user_id = ?
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domcart.Item
	for rows.Next() {
		var item domcart.Item
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *CartRepository) getByProduct(ctx context.Context, userID, productID int64) (*domcart.Item, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, product_id, quantity
        FROM cart_items
        WHERE user_id = ? AND product_id = ?
    `, userID, productID)

	var item domcart.Item
	if err := row.Scan(&item.ID, &item.ProductID, &item.Quantity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domcart.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}
