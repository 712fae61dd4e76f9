package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type StockCache interface {
	// GetStock returns the cached snapshot; ok is false on a cache miss
	GetStock(ctx context.Context, key domain.InventoryKey) (record domain.InventoryRecord, ok bool, err error)

	// SetStock stores a snapshot that expires after ttl, unless a snapshot
	// with a newer version is already cached
	SetStock(ctx context.Context, record domain.InventoryRecord, ttl time.Duration) error
}

type CartRepository interface {
	// GetCart returns the user's cart lines ordered by (item, size)
	GetCart(ctx context.Context, userID string) ([]domain.CartLine, error)

	// SetCartLine sets the quantity of a line, removing it when quantity is 0
	SetCartLine(ctx context.Context, userID string, line domain.CartLine) error

	// ClearCart empties the user's cart
	ClearCart(ctx context.Context, userID string) error
}
