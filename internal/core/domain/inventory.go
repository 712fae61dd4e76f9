package domain

import (
	"fmt"
	"sort"
	"time"
)

// InventoryKey identifies the stock counter of one (item, size) pair.
type InventoryKey struct {
	ItemID int64 `json:"item_id"`
	SizeID int64 `json:"size_id"`
}

func (k InventoryKey) String() string {
	return fmt.Sprintf("%d:%d", k.ItemID, k.SizeID)
}

// Less orders keys by item, then size. Stock rows are always locked in this
// order.
func (k InventoryKey) Less(o InventoryKey) bool {
	if k.ItemID != o.ItemID {
		return k.ItemID < o.ItemID
	}
	return k.SizeID < o.SizeID
}

type InventoryRecord struct {
	ItemID    int64     `json:"item_id"`
	SizeID    int64     `json:"size_id"`
	Quantity  int       `json:"quantity"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r InventoryRecord) Key() InventoryKey {
	return InventoryKey{ItemID: r.ItemID, SizeID: r.SizeID}
}

// StockChange is a quantity applied to one inventory key.
type StockChange struct {
	InventoryKey
	Quantity int
}

func SortStockChanges(changes []StockChange) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].InventoryKey.Less(changes[j].InventoryKey)
	})
}
