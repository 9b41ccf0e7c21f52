package domain

// Order line statuses.
const (
	OrderOpen      = "Offen"
	OrderApproved  = "Genehmigt"
	OrderCancelled = "Storniert"
)

// OrderLine is one ordered unit. Lines placed in the same checkout share a
// random six-digit group id.
type OrderLine struct {
	ID        int64  `db:"id" json:"id"`
	GroupID   int64  `db:"bestellgruppe_id" json:"group_id"`
	Customer  string `db:"kundennummer" json:"customer"`
	Barcode   string `db:"barcode" json:"barcode"`
	Name      string `db:"name" json:"name"`
	OrderedAt string `db:"bestelldatum" json:"ordered_at"`
	Status    string `db:"status" json:"status"`
}

// OrderGroup is the grouped view of one checkout: all medication names of the
// group concatenated, as shown to customers and admins.
type OrderGroup struct {
	GroupID   int64  `db:"bestellgruppe_id" json:"group_id"`
	Customer  string `db:"kundennummer" json:"customer"`
	Medicines string `db:"medikamente" json:"medicines"`
	OrderedAt string `db:"bestelldatum" json:"ordered_at"`
	Status    string `db:"status" json:"status"`
}
