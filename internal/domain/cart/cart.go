package cart

import "example.com/cartsync/internal/domain/product"

// Item is a cart row as the backend stores it.
type Item struct {
	ID        string
	ProductID int64
	Quantity  int64
}

type DetailedItem struct {
	Item
	Product product.Product
}

type Cart struct {
	UserID int64
	Items  []DetailedItem
}

// ProductRef is the denormalised product snapshot a client keeps next to a
// line item. The backend owns the product; the snapshot is display data.
type ProductRef struct {
	ID    string
	Title string
	Price float64
	Image string
}

// LineItem is one row of a client-side cart.
type LineItem struct {
	ID       string
	Product  ProductRef
	Quantity int64
}

func (l LineItem) Subtotal() float64 {
	return l.Product.Price * float64(l.Quantity)
}
