package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPlaced, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	Items     []OrderLineItem `json:"items,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OrderLineItem struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	ItemID   int64  `json:"item_id"`
	SizeID   int64  `json:"size_id"`
	Quantity int    `json:"quantity"`
}

// LineRequest is one requested (item, size, quantity) tuple of an order.
type LineRequest struct {
	ItemID   int64 `json:"item_id"`
	SizeID   int64 `json:"size_id"`
	Quantity int   `json:"quantity"`
}

func (l LineRequest) Key() InventoryKey {
	return InventoryKey{ItemID: l.ItemID, SizeID: l.SizeID}
}

// StockDemand merges lines touching the same (item, size) and returns the
// summed quantities ordered by key.
func StockDemand(lines []OrderLineItem) []StockChange {
	totals := make(map[InventoryKey]int, len(lines))
	for _, l := range lines {
		totals[InventoryKey{ItemID: l.ItemID, SizeID: l.SizeID}] += l.Quantity
	}

	demand := make([]StockChange, 0, len(totals))
	for key, qty := range totals {
		demand = append(demand, StockChange{InventoryKey: key, Quantity: qty})
	}
	SortStockChanges(demand)
	return demand
}
