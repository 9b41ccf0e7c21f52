package domain

// Locations an inventory unit can occupy.
const (
	LocationWarehouse = "Lager"
	LocationMachine   = "Automat"
)

// InventoryItem is one physical unit of a medication. Quantity is 1 per row;
// only cancellation of an order may bump it on an existing warehouse row.
type InventoryItem struct {
	Barcode    string  `db:"barcode" json:"barcode"`
	Name       string  `db:"name" json:"name"`
	Quantity   int64   `db:"menge" json:"quantity"`
	ExpiryDate string  `db:"verfallsdatum" json:"expiry_date"`
	Location   string  `db:"ort" json:"location"`
	Channel    *string `db:"kanal" json:"channel,omitempty"`
}

// ItemCount is the aggregate stock per medication name.
type ItemCount struct {
	Name     string `db:"name" json:"name"`
	Quantity int64  `db:"total" json:"quantity"`
}
