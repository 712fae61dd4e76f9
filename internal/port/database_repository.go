package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists the order, its line items and the inventory
	// decrements as one transaction. Nothing is written on error.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves an order with its line items, nil if it does not exist
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrdersByUser returns a user's orders, newest first, without line items
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

type InventoryRepository interface {
	// GetInventory retrieves the stock record of an (item, size), nil if unknown
	GetInventory(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error)

	// AddStock increments stock, creating the record if needed, and returns the result
	AddStock(ctx context.Context, key domain.InventoryKey, quantity int) (*domain.InventoryRecord, error)
}

type CatalogRepository interface {
	// ItemPrices returns the unit price of every known item among itemIDs
	ItemPrices(ctx context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error)
}
