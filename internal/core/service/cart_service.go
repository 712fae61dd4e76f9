package service

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CartService struct {
	carts port.CartRepository
}

func NewCartService(carts port.CartRepository) *CartService {
	return &CartService{carts: carts}
}

func (s *CartService) GetCart(ctx context.Context, userID string) ([]domain.CartLine, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	lines, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, asDomainError("get cart", err)
	}
	return lines, nil
}

// SetCartLine sets the quantity of one cart line. Zero removes the line.
func (s *CartService) SetCartLine(ctx context.Context, userID string, line domain.CartLine) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	if line.ItemID <= 0 || line.SizeID <= 0 {
		return domain.Invalid("item_id and size_id are required")
	}
	if line.Quantity < 0 {
		return domain.Invalid("quantity must not be negative")
	}

	if err := s.carts.SetCartLine(ctx, userID, line); err != nil {
		return asDomainError("set cart line", err)
	}
	return nil
}
