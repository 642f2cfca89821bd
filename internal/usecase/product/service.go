package product

import (
	"context"

	dom "example.com/cartsync/internal/domain/product"
)

type Service struct {
	repo dom.Repository
}

func NewService(repo dom.Repository) *Service {
	return &Service{repo: repo}
}

// GetByID hides inactive products from the storefront.
func (s *Service) GetByID(ctx context.Context, id int64) (*dom.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, dom.ErrProductNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, filter dom.ListFilter) ([]*dom.Product, error) {
	filter.OnlyActive = true
	return s.repo.List(ctx, filter)
}
