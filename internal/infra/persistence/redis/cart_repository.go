package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domcart "example.com/cartsync/internal/domain/cart"
)

const (
	cartKeyPrefix = "cart:user:"
	maxTxRetries  = 5
)

var errTooManyRetries = errors.New("redis cart: too many concurrent updates")

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis (ping failed): %w", err)
	}
	return client, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type storedItem struct {
	ID        string `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CartRepository keeps each user's cart as one JSON document. Writes use
// WATCH/MULTI so concurrent requests for the same user do not lose updates.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl}
}

func (r *CartRepository) key(userID int64) string {
	return fmt.Sprintf("%s%d", cartKeyPrefix, userID)
}

func (r *CartRepository) AddItem(ctx context.Context, userID int64, productID int64, quantity int64) (*domcart.Item, error) {
	return r.update(ctx, userID, func(items []storedItem) ([]storedItem, *storedItem, error) {
		next, item := addItem(items, productID, quantity, uuid.NewString())
		return next, item, nil
	})
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID int64, productID int64, quantity int64) (*domcart.Item, error) {
	return r.update(ctx, userID, func(items []storedItem) ([]storedItem, *storedItem, error) {
		return setQuantity(items, productID, quantity)
	})
}

func (r *CartRepository) DeleteItem(ctx context.Context, userID int64, itemID string) error {
	_, err := r.update(ctx, userID, func(items []storedItem) ([]storedItem, *storedItem, error) {
		return deleteItem(items, itemID)
	})
	return err
}

func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	items, err := r.load(ctx, r.client, r.key(userID))
	if err != nil {
		return nil, err
	}
	out := make([]domcart.Item, 0, len(items))
	for _, it := range items {
		out = append(out, toDomain(it))
	}
	return out, nil
}

type mutation func(items []storedItem) ([]storedItem, *storedItem, error)

func (r *CartRepository) update(ctx context.Context, userID int64, fn mutation) (*domcart.Item, error) {
	key := r.key(userID)
	var result *storedItem

	txf := func(tx *redis.Tx) error {
		items, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		next, item, err := fn(items)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal cart for key %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		result = item
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		item := toDomain(*result)
		return &item, nil
	}
	return nil, errTooManyRetries
}

func (r *CartRepository) load(ctx context.Context, c getter, key string) ([]storedItem, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart %s from redis: %w", key, err)
	}
	var items []storedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart %s: %w", key, err)
	}
	return items, nil
}

func addItem(items []storedItem, productID, quantity int64, newID string) ([]storedItem, *storedItem) {
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			item := items[i]
			return items, &item
		}
	}
	item := storedItem{ID: newID, ProductID: productID, Quantity: quantity}
	return append(items, item), &item
}

func setQuantity(items []storedItem, productID, quantity int64) ([]storedItem, *storedItem, error) {
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			item := items[i]
			return items, &item, nil
		}
	}
	return nil, nil, domcart.ErrItemNotFound
}

func deleteItem(items []storedItem, itemID string) ([]storedItem, *storedItem, error) {
	for i := range items {
		if items[i].ID == itemID {
			return append(items[:i], items[i+1:]...), nil, nil
		}
	}
	return nil, nil, domcart.ErrItemNotFound
}

func toDomain(it storedItem) domcart.Item {
	return domcart.Item{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity}
}
