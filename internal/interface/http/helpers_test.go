package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domcart "example.com/cartsync/internal/domain/cart"
	domproduct "example.com/cartsync/internal/domain/product"
	"example.com/cartsync/internal/infra/security"
	cartuc "example.com/cartsync/internal/usecase/cart"
	productuc "example.com/cartsync/internal/usecase/product"
)

const testSecret = "test-secret"

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type fakeProductRepo struct {
	products map[int64]*domproduct.Product
	listErr  error
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products: map[int64]*domproduct.Product{
			1: {ID: 1, Name: "Coffee Mug", Price: 10, ImageURL: "mug.png", Stock: 100, CategoryID: 1, IsActive: true},
			2: {ID: 2, Name: "Tea Pot", Price: 15, ImageURL: "pot.png", Stock: 5, CategoryID: 2, IsActive: true},
			3: {ID: 3, Name: "Retired Mug", Price: 30, Stock: 50, CategoryID: 1, IsActive: false},
		},
	}
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id int64) (*domproduct.Product, error) {
	if p, ok := f.products[id]; ok {
		cloned := *p
		return &cloned, nil
	}
	return nil, domproduct.ErrProductNotFound
}

func (f *fakeProductRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error) {
	var result []*domproduct.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			cloned := *p
			result = append(result, &cloned)
		}
	}
	return result, nil
}

func (f *fakeProductRepo) List(ctx context.Context, filter domproduct.ListFilter) ([]*domproduct.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var result []*domproduct.Product
	for id := int64(1); id <= int64(len(f.products)); id++ {
		p, ok := f.products[id]
		if !ok {
			continue
		}
		if filter.OnlyActive && !p.IsActive {
			continue
		}
		if filter.CategoryID != nil && p.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		cloned := *p
		result = append(result, &cloned)
	}
	return result, nil
}

type fakeCartRepo struct {
	mu     sync.Mutex
	items  map[int64][]domcart.Item
	nextID int
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{items: make(map[int64][]domcart.Item)}
}

func (f *fakeCartRepo) AddItem(ctx context.Context, userID, productID, quantity int64) (*domcart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.items[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			item := items[i]
			return &item, nil
		}
	}
	f.nextID++
	item := domcart.Item{ID: fmt.Sprintf("line-%d", f.nextID), ProductID: productID, Quantity: quantity}
	f.items[userID] = append(items, item)
	return &item, nil
}

func (f *fakeCartRepo) SetQuantity(ctx context.Context, userID, productID, quantity int64) (*domcart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.items[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			item := items[i]
			return &item, nil
		}
	}
	return nil, domcart.ErrItemNotFound
}

func (f *fakeCartRepo) DeleteItem(ctx context.Context, userID int64, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.items[userID]
	for i := range items {
		if items[i].ID == itemID {
			f.items[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return domcart.ErrItemNotFound
}

func (f *fakeCartRepo) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domcart.Item, len(f.items[userID]))
	copy(out, f.items[userID])
	return out, nil
}

type storeAPI struct {
	api      *API
	cartRepo *fakeCartRepo
	products *fakeProductRepo
	tokens   *security.JWTService
}

func setupStoreAPI() *storeAPI {
	cartRepo := newFakeCartRepo()
	productRepo := newFakeProductRepo()
	tokenSvc := security.NewJWTService(testSecret, time.Hour)

	api := NewAPI(Dependencies{
		ProductService: productuc.NewService(productRepo),
		CartService:    cartuc.NewService(cartRepo, productRepo),
		TokenService:   tokenSvc,
	})
	return &storeAPI{api: api, cartRepo: cartRepo, products: productRepo, tokens: tokenSvc}
}

func (s *storeAPI) tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, _, err := s.tokens.Issue(userID)
	require.NoError(t, err)
	return token
}
