package domain

// CartItem is a unit pending checkout. Carts live in memory per customer
// session and are never persisted.
type CartItem struct {
	Barcode    string `json:"barcode"`
	Name       string `json:"name"`
	ExpiryDate string `json:"expiry_date"`
}
