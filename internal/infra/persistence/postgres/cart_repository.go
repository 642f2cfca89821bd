package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domcart "example.com/cartsync/internal/domain/cart"
)

// Open creates a pool and verifies the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return pool, nil
}

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) AddItem(ctx context.Context, userID int64, productID int64, quantity int64) (*domcart.Item, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO cart_items (id, user_id, product_id, quantity)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, product_id)
        DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
        RETURNING id, product_id, quantity
    `, uuid.NewString(), userID, productID, quantity)
	return scanItem(row)
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID int64, productID int64, quantity int64) (*domcart.Item, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE cart_items SET quantity = $1
        WHERE user_id = $2 AND product_id = $3
        RETURNING id, product_id, quantity
    `, quantity, userID, productID)
	return scanItem(row)
}

func (r *CartRepository) DeleteItem(ctx context.Context, userID int64, itemID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domcart.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, product_id, quantity
        FROM cart_items
        WHERE user_id = $1
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

func scanItem(row pgx.Row) (*domcart.Item, error) {
	var item domcart.Item
	if err := row.Scan(&item.ID, &item.ProductID, &item.Quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domcart.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}
