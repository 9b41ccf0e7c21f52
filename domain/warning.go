package domain

// WarningStatusExpired marks a warning caused by a passed expiry date.
const WarningStatusExpired = "Medikament abgelaufen"

// WarningEntry is derived 1:1 from an expired inventory item and rebuilt on
// every inventory read.
type WarningEntry struct {
	Barcode    string `db:"barcode" json:"barcode"`
	Name       string `db:"name" json:"name"`
	ExpiryDate string `db:"verfallsdatum" json:"expiry_date"`
	Location   string `db:"ort" json:"location"`
	Status     string `db:"status" json:"status"`
}
