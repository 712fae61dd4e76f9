package domain

// CartLine is a pending (item, size, quantity) in a user's cart.
type CartLine struct {
	ItemID   int64 `json:"item_id"`
	SizeID   int64 `json:"size_id"`
	Quantity int   `json:"quantity"`
}

func (c CartLine) Key() InventoryKey {
	return InventoryKey{ItemID: c.ItemID, SizeID: c.SizeID}
}
