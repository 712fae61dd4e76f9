package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

func TestOpenStores_MemoryDriverPlacesOrders(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		StorageDriver: config.StorageMemory,
		SeedItems:     map[int64]decimal.Decimal{7: decimal.RequireFromString("20.00")},
	}

	st, err := openStores(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, st.closers)

	inventory := service.NewInventoryService(st.inventory, st.cache, nil, time.Minute, zap.NewNop())
	orders := service.NewOrderService(st.orders, st.catalog, st.carts, nil, zap.NewNop(), service.OrderOptions{VerifyTotal: true})
	admin := domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin}

	_, err = inventory.AddStock(ctx, admin, domain.InventoryKey{ItemID: 7, SizeID: 2}, 3)
	require.NoError(t, err)

	order, err := orders.PlaceOrder(ctx, service.PlaceOrderRequest{
		UserID: "user-1",
		Total:  decimal.RequireFromString("20.00"),
		Items:  []domain.LineRequest{{ItemID: 7, SizeID: 2, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)

	// unseeded items behave as they do in MySQL
	_, err = inventory.AddStock(ctx, admin, domain.InventoryKey{ItemID: 8, SizeID: 1}, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
