package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MemoryAdapter keeps orders, inventory, prices, carts and cached stock in
// process. One mutex serialises every mutation, so CreateOrder has the same
// all-or-nothing behaviour as the MySQL transaction.
type MemoryAdapter struct {
	mu        sync.Mutex
	prices    map[int64]decimal.Decimal
	inventory map[domain.InventoryKey]*domain.InventoryRecord
	orders    map[string]*domain.Order
	carts     map[string]map[domain.InventoryKey]int
	stock     map[domain.InventoryKey]cachedStock
	now       func() time.Time
}

type cachedStock struct {
	record    domain.InventoryRecord
	expiresAt time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		prices:    make(map[int64]decimal.Decimal),
		inventory: make(map[domain.InventoryKey]*domain.InventoryRecord),
		orders:    make(map[string]*domain.Order),
		carts:     make(map[string]map[domain.InventoryKey]int),
		stock:     make(map[domain.InventoryKey]cachedStock),
		now:       time.Now,
	}
}

// PutItem registers an item and its unit price.
func (m *MemoryAdapter) PutItem(itemID int64, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[itemID] = price
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return domain.Storage("begin tx", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	demand := domain.StockDemand(order.Items)
	for _, change := range demand {
		record, ok := m.inventory[change.InventoryKey]
		if !ok {
			return domain.StockNotFound(change.InventoryKey)
		}
		if record.Quantity < change.Quantity {
			return domain.InsufficientStock(change.InventoryKey, change.Quantity, record.Quantity)
		}
	}

	now := m.now().UTC()
	for _, change := range demand {
		record := m.inventory[change.InventoryKey]
		record.Quantity -= change.Quantity
		record.Version++
		record.UpdatedAt = now
	}

	order.Status = domain.OrderStatusPlaced
	order.UpdatedAt = now
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return copyOrder(order), nil
}

func (m *MemoryAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			order := *o
			order.Items = nil
			orders = append(orders, order)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (m *MemoryAdapter) GetInventory(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.inventory[key]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *MemoryAdapter) AddStock(ctx context.Context, key domain.InventoryKey, quantity int) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.prices[key.ItemID]; !ok {
		return nil, domain.StockNotFound(key)
	}

	record, ok := m.inventory[key]
	if !ok {
		record = &domain.InventoryRecord{ItemID: key.ItemID, SizeID: key.SizeID}
		m.inventory[key] = record
	}
	record.Quantity += quantity
	record.Version++
	record.UpdatedAt = m.now().UTC()

	copied := *record
	return &copied, nil
}

func (m *MemoryAdapter) ItemPrices(ctx context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prices := make(map[int64]decimal.Decimal, len(itemIDs))
	for _, id := range itemIDs {
		if price, ok := m.prices[id]; ok {
			prices[id] = price
		}
	}
	return prices, nil
}

func (m *MemoryAdapter) GetCart(ctx context.Context, userID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]domain.CartLine, 0, len(m.carts[userID]))
	for key, qty := range m.carts[userID] {
		lines = append(lines, domain.CartLine{ItemID: key.ItemID, SizeID: key.SizeID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Key().Less(lines[j].Key())
	})
	return lines, nil
}

func (m *MemoryAdapter) SetCartLine(ctx context.Context, userID string, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[userID]
	if !ok {
		cart = make(map[domain.InventoryKey]int)
		m.carts[userID] = cart
	}
	if line.Quantity == 0 {
		delete(cart, line.Key())
		return nil
	}
	cart[line.Key()] = line.Quantity
	return nil
}

func (m *MemoryAdapter) ClearCart(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *MemoryAdapter) GetStock(ctx context.Context, key domain.InventoryKey) (domain.InventoryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.stock[key]
	if !ok || (!cached.expiresAt.IsZero() && m.now().After(cached.expiresAt)) {
		return domain.InventoryRecord{}, false, nil
	}
	return cached.record, true, nil
}

func (m *MemoryAdapter) SetStock(ctx context.Context, record domain.InventoryRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.stock[record.Key()]; ok && cached.record.Version > record.Version {
		return nil
	}

	entry := cachedStock{record: record}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.stock[record.Key()] = entry
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	copied := *o
	copied.Items = append([]domain.OrderLineItem(nil), o.Items...)
	return &copied
}
