package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type cartBody struct {
	Items []struct {
		ID      string `json:"_id"`
		Product struct {
			ID    string  `json:"_id"`
			Title string  `json:"title"`
			Price float64 `json:"price"`
			Image string  `json:"image"`
		} `json:"productId"`
		Quantity int64 `json:"quantity"`
	} `json:"items"`
}

func decodeCart(t *testing.T, raw []byte) cartBody {
	t.Helper()
	var body cartBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCartEndpoints_RequireBearerToken(t *testing.T) {
	s := setupStoreAPI()
	router := s.api.Router()

	requests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/getCart"},
		{http.MethodPost, "/api/v1/addToCart"},
		{http.MethodPut, "/api/v1/updateCart/1"},
		{http.MethodDelete, "/api/v1/deletedProduct/line-1"},
	}
	for _, r := range requests {
		rec := doJSON(t, router, r.method, r.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, r.path)

		rec = doJSON(t, router, r.method, r.path, "garbage", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
	}
}

func TestAddToCart_ReturnsLineItemID(t *testing.T) {
	s := setupStoreAPI()
	router := s.api.Router()
	token := s.tokenFor(t, 100)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/addToCart", token, map[string]any{
		"productId": "1",
		"quantity":  2,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"status":"added","item":{"_id":"line-1","productId":"1","quantity":2}}`, rec.Body.String())
}

func TestAddToCart_AcceptsNumericProductID(t *testing.T) {
	s := setupStoreAPI()
	token := s.tokenFor(t, 100)

	rec := doJSON(t, s.api.Router(), http.MethodPost, "/api/v1/addToCart", token, map[string]any{
		"productId": 2,
		"quantity":  1,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAddToCart_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{name: "missing product", body: map[string]any{"quantity": 1}, wantStatus: http.StatusBadRequest},
		{name: "non numeric product", body: map[string]any{"productId": "abc", "quantity": 1}, wantStatus: http.StatusBadRequest},
		{name: "zero quantity", body: map[string]any{"productId": "1", "quantity": 0}, wantStatus: http.StatusBadRequest},
		{name: "unknown product", body: map[string]any{"productId": "999", "quantity": 1}, wantStatus: http.StatusNotFound},
		{name: "inactive product", body: map[string]any{"productId": "3", "quantity": 1}, wantStatus: http.StatusNotFound},
		{name: "exceeds stock", body: map[string]any{"productId": "2", "quantity": 6}, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupStoreAPI()
			token := s.tokenFor(t, 100)

			rec := doJSON(t, s.api.Router(), http.MethodPost, "/api/v1/addToCart", token, tt.body)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestGetCart_ReturnsItemsWithProductSnapshot(t *testing.T) {
	s := setupStoreAPI()
	router := s.api.Router()
	token := s.tokenFor(t, 100)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/addToCart", token, map[string]any{"productId": "2", "quantity": 3})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/getCart", token, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeCart(t, rec.Body.Bytes())
	require.Len(t, body.Items, 1)
	require.Equal(t, "line-1", body.Items[0].ID)
	require.Equal(t, "2", body.Items[0].Product.ID)
	require.Equal(t, "Tea Pot", body.Items[0].Product.Title)
	require.Equal(t, 15.0, body.Items[0].Product.Price)
	require.Equal(t, "pot.png", body.Items[0].Product.Image)
	require.Equal(t, int64(3), body.Items[0].Quantity)

	other := doJSON(t, router, http.MethodGet, "/api/v1/getCart", s.tokenFor(t, 200), nil)
	require.Empty(t, decodeCart(t, other.Body.Bytes()).Items, "carts are per user")
}

func TestUpdateCart(t *testing.T) {
	s := setupStoreAPI()
	router := s.api.Router()
	token := s.tokenFor(t, 100)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/updateCart/1", token, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusNotFound, rec.Code, "product not in cart yet")

	doJSON(t, router, http.MethodPost, "/api/v1/addToCart", token, map[string]any{"productId": "1", "quantity": 1})

	rec = doJSON(t, router, http.MethodPut, "/api/v1/updateCart/1", token, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"status":"updated","item":{"_id":"line-1","productId":"1","quantity":4}}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPut, "/api/v1/updateCart/1", token, map[string]any{"quantity": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/v1/updateCart/x", token, map[string]any{"quantity": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCartItem(t *testing.T) {
	s := setupStoreAPI()
	router := s.api.Router()
	token := s.tokenFor(t, 100)

	doJSON(t, router, http.MethodPost, "/api/v1/addToCart", token, map[string]any{"productId": "1", "quantity": 1})

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/deletedProduct/line-1", s.tokenFor(t, 200), nil)
	require.Equal(t, http.StatusNotFound, rec.Code, "another user's line")

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/deletedProduct/line-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/deletedProduct/line-1", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
