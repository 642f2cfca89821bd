package cart

import (
	"context"

	domcart "example.com/cartsync/internal/domain/cart"
	domproduct "example.com/cartsync/internal/domain/product"
)

type CartRepository interface {
	domcart.Repository
}

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domproduct.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error)
}

type Service struct {
	cartRepo    CartRepository
	productRepo ProductRepository
}

func NewService(cartRepo CartRepository, productRepo ProductRepository) *Service {
	return &Service{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// AddToCart creates the product's row or increments it.
func (s *Service) AddToCart(ctx context.Context, userID, productID int64, quantity int64) (*domcart.Item, error) {
	if quantity <= 0 {
		return nil, domcart.ErrInvalidQuantity
	}

	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := int64(0)
	for _, item := range items {
		if item.ProductID == productID {
			current += item.Quantity
		}
	}
	if current+quantity > p.Stock {
		return nil, domproduct.ErrOutOfStock
	}

	return s.cartRepo.AddItem(ctx, userID, productID, quantity)
}

// UpdateQuantity overwrites the quantity of a product already in the cart.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int64) (*domcart.Item, error) {
	if quantity <= 0 {
		return nil, domcart.ErrInvalidQuantity
	}

	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, domproduct.ErrOutOfStock
	}

	return s.cartRepo.SetQuantity(ctx, userID, productID, quantity)
}

func (s *Service) RemoveItem(ctx context.Context, userID int64, itemID string) error {
	return s.cartRepo.DeleteItem(ctx, userID, itemID)
}

// GetCart returns the rows with their product snapshots. Rows whose product
// no longer exists are left out.
func (s *Service) GetCart(ctx context.Context, userID int64) (*domcart.Cart, error) {
	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &domcart.Cart{UserID: userID, Items: []domcart.DetailedItem{}}, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*domproduct.Product)
	for _, p := range products {
		productMap[p.ID] = p
	}

	cart := &domcart.Cart{
		UserID: userID,
		Items:  make([]domcart.DetailedItem, 0, len(items)),
	}

	for _, item := range items {
		if p, ok := productMap[item.ProductID]; ok {
			cart.Items = append(cart.Items, domcart.DetailedItem{
				Item:    item,
				Product: *p,
			})
		}
	}

	return cart, nil
}

func (s *Service) activeProduct(ctx context.Context, productID int64) (*domproduct.Product, error) {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domproduct.ErrProductNotFound
	}
	return p, nil
}
