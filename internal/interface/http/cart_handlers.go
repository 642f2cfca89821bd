package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domcart "example.com/cartsync/internal/domain/cart"
)

var errInvalidProductID = errors.New("invalid product id")

// productID accepts the id either as a JSON string or a number.
type productID string

func (p *productID) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = productID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = productID(n.String())
	return nil
}

func (p productID) parse() (int64, error) {
	id, err := strconv.ParseInt(string(p), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidProductID
	}
	return id, nil
}

type addToCartRequest struct {
	ProductID productID `json:"productId" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
}

type updateCartRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

type cartProductDTO struct {
	ID    string  `json:"_id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type cartLineDTO struct {
	ID       string         `json:"_id"`
	Product  cartProductDTO `json:"productId"`
	Quantity int64          `json:"quantity"`
}

type cartItemDTO struct {
	ID        string `json:"_id"`
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func mapCartItem(item *domcart.Item) cartItemDTO {
	return cartItemDTO{
		ID:        item.ID,
		ProductID: strconv.FormatInt(item.ProductID, 10),
		Quantity:  item.Quantity,
	}
}

func mapCart(cart *domcart.Cart) map[string]any {
	items := make([]cartLineDTO, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartLineDTO{
			ID: item.ID,
			Product: cartProductDTO{
				ID:    strconv.FormatInt(item.Product.ID, 10),
				Title: item.Product.Name,
				Price: item.Product.Price,
				Image: item.Product.ImageURL,
			},
			Quantity: item.Quantity,
		})
	}
	return map[string]any{"items": items}
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	cart, err := a.cartSvc.GetCart(r.Context(), session.UserID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (a *API) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	var req addToCartRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}
	pid, err := req.ProductID.parse()
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.cartSvc.AddToCart(r.Context(), session.UserID, pid, req.Quantity)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "added",
		"item":   mapCartItem(item),
	})
}

func (a *API) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	pid, err := productID(chi.URLParam(r, "productId")).parse()
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var req updateCartRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}

	item, err := a.cartSvc.UpdateQuantity(r.Context(), session.UserID, pid, req.Quantity)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "updated",
		"item":   mapCartItem(item),
	})
}

func (a *API) handleDeleteCartItem(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	lineItemID := chi.URLParam(r, "lineItemId")
	if err := a.cartSvc.RemoveItem(r.Context(), session.UserID, lineItemID); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
