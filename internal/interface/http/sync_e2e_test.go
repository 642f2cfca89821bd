package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domcart "example.com/cartsync/internal/domain/cart"
	"example.com/cartsync/internal/infra/cartapi"
	"example.com/cartsync/internal/usecase/cartsync"
)

// newSyncedCache serves the real router and points a cache at it.
func newSyncedCache(t *testing.T) (*cartsync.Cache, *storeAPI) {
	t.Helper()
	s := setupStoreAPI()
	srv := httptest.NewServer(s.api.Router())
	t.Cleanup(srv.Close)

	client := cartapi.NewClient(cartapi.Config{BaseURL: srv.URL + "/api/v1", Timeout: 2 * time.Second}, nil)
	return cartsync.NewCache(client, cartsync.Options{}), s
}

func TestCacheAgainstServer_AddUpdateRemove(t *testing.T) {
	ctx := context.Background()
	cache, s := newSyncedCache(t)
	token := s.tokenFor(t, 100)
	mug := domcart.ProductRef{ID: "1", Title: "Coffee Mug", Price: 10, Image: "mug.png"}

	require.NoError(t, cache.Load(ctx, token))
	require.Empty(t, cache.Items())

	require.NoError(t, cache.AddItem(ctx, token, mug, 2))
	require.NoError(t, cache.AddItem(ctx, token, mug, 1))

	line, ok := cache.LineForProduct("1")
	require.True(t, ok)
	require.False(t, cartsync.IsProvisional(line.ID), "server id replaces the local one")
	require.Equal(t, int64(3), line.Quantity)

	require.NoError(t, cache.UpdateQuantity(ctx, token, line.ID, 5))
	require.Equal(t, 50.0, cache.Total())

	stored, err := s.cartRepo.ListItems(ctx, 100)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, int64(5), stored[0].Quantity)

	// a fresh cache sees what the first one pushed
	fresh, _ := newSyncedCacheFor(t, s)
	require.NoError(t, fresh.Load(ctx, token))
	require.Equal(t, int64(5), fresh.Count())
	require.Equal(t, line.ID, fresh.Items()[0].ID)

	require.NoError(t, cache.RemoveItem(ctx, token, line.ID))
	require.Empty(t, cache.Items())
	stored, err = s.cartRepo.ListItems(ctx, 100)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestCacheAgainstServer_RejectedAddRollsBack(t *testing.T) {
	ctx := context.Background()
	cache, s := newSyncedCache(t)
	token := s.tokenFor(t, 100)
	pot := domcart.ProductRef{ID: "2", Title: "Tea Pot", Price: 15}

	err := cache.AddItem(ctx, token, pot, 6)

	require.Error(t, err)
	var statusErr *cartapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 422, statusErr.StatusCode)
	require.Empty(t, cache.Items(), "a line the server never accepted is removed")
}

func TestCacheAgainstServer_BadTokenLoadsEmptyCart(t *testing.T) {
	cache, _ := newSyncedCache(t)

	require.NoError(t, cache.Load(context.Background(), "expired-or-forged"))
	require.True(t, cache.Loaded())
	require.Empty(t, cache.Items())

	err := cache.AddItem(context.Background(), "expired-or-forged", domcart.ProductRef{ID: "1", Price: 10}, 1)
	require.ErrorIs(t, err, domcart.ErrUnauthenticated)
	require.Empty(t, cache.Items())
}

func newSyncedCacheFor(t *testing.T, s *storeAPI) (*cartsync.Cache, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(s.api.Router())
	t.Cleanup(srv.Close)
	client := cartapi.NewClient(cartapi.Config{BaseURL: srv.URL + "/api/v1"}, nil)
	return cartsync.NewCache(client, cartsync.Options{}), srv
}
