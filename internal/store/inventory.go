package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"medlager/m/domain"
	"medlager/m/internal/audit"
)

var barcodePattern = regexp.MustCompile(`^\d{8,13}$`)

// ValidBarcode reports whether s is an 8-13 digit numeric barcode.
func ValidBarcode(s string) bool {
	return barcodePattern.MatchString(s)
}

// Inventory manages the warehouse and dispensing-machine stock, including
// channel assignment inside the machine.
type Inventory struct {
	db       *sqlx.DB
	warnings *Warnings
	audit    *audit.Logger
	now      func() time.Time
}

// NewInventory constructs an Inventory over db.
func NewInventory(db *sqlx.DB, warnings *Warnings, auditLog *audit.Logger) *Inventory {
	return &Inventory{db: db, warnings: warnings, audit: auditLog, now: time.Now}
}

func (inv *Inventory) barcodeInOpenOrder(barcode string) (bool, error) {
	var count int
	err := inv.db.Get(&count, `SELECT COUNT(*) FROM bestellungen WHERE barcode = ? AND status = ?`, barcode, domain.OrderOpen)
	return count > 0, err
}

func (inv *Inventory) barcodeInStock(barcode string) (bool, error) {
	var count int
	err := inv.db.Get(&count, `SELECT COUNT(*) FROM lagerbestand WHERE barcode = ?`, barcode)
	return count > 0, err
}

func (inv *Inventory) validExpiry(expiry string) bool {
	date, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return false
	}
	today := inv.now().Format("2006-01-02")
	return date.Format("2006-01-02") >= today
}

// Add inserts a new unit into the warehouse on behalf of actor. Every unit
// is one row with quantity 1; the barcode must be unique across stock and
// open orders.
func (inv *Inventory) Add(actor, barcode, name, expiry string) error {
	if barcode == "" || name == "" || expiry == "" {
		return validationf("🚫 Fehler: Alle Felder müssen ausgefüllt sein!")
	}
	if !ValidBarcode(barcode) {
		return validationf("🚫 Fehler: Ungültiger Barcode! Er muss 8-13 Ziffern enthalten.")
	}
	inOrder, err := inv.barcodeInOpenOrder(barcode)
	if err != nil {
		return internalErr(err)
	}
	if inOrder {
		return conflictf("🚫 Fehler: Dieser Barcode ist in einer offenen Bestellung!")
	}
	inStock, err := inv.barcodeInStock(barcode)
	if err != nil {
		return internalErr(err)
	}
	if inStock {
		return conflictf("🚫 Fehler: Barcode %s existiert bereits im Lager!", barcode)
	}
	if !inv.validExpiry(expiry) {
		return validationf("⚠️ Fehler: Verfallsdatum ungültig oder Ware ist abgelaufen!")
	}

	_, err = inv.db.Exec(`INSERT INTO lagerbestand (barcode, name, menge, verfallsdatum, ort) VALUES (?, ?, 1, ?, ?)`,
		barcode, name, expiry, domain.LocationWarehouse)
	if err != nil {
		return internalErr(err)
	}
	inv.audit.Log(actor, fmt.Sprintf("📦 Medikament hinzugefügt: %s (Barcode: %s)", name, barcode))
	return nil
}

// Remove deletes a warehouse unit. Machine-located units cannot be removed
// from this path; they have to leave the machine first.
func (inv *Inventory) Remove(actor, barcode string) error {
	if barcode == "" || !ValidBarcode(barcode) {
		return validationf("🚫 Fehler: Ungültiger oder leerer Barcode!")
	}

	var location string
	err := inv.db.Get(&location, `SELECT ort FROM lagerbestand WHERE barcode = ?`, barcode)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundf("🚫 Fehler: Barcode %s nicht im Lager gefunden!", barcode)
	}
	if err != nil {
		return internalErr(err)
	}
	if location == domain.LocationMachine {
		return statef("🚫 Fehler: Ware %s ist im Automaten und kann nicht gelöscht werden!", barcode)
	}

	if _, err := inv.db.Exec(`DELETE FROM lagerbestand WHERE barcode = ?`, barcode); err != nil {
		return internalErr(err)
	}
	inv.audit.Log(actor, fmt.Sprintf("✅ Ware %s entfernt.", barcode))
	return nil
}

// List returns the current stock, optionally filtered by barcode substring
// and location. Expiry warnings are recomputed as a side effect.
func (inv *Inventory) List(barcodeFilter, locationFilter string) ([]domain.InventoryItem, error) {
	if err := inv.warnings.Refresh(); err != nil {
		return nil, err
	}

	query := `SELECT barcode, name, menge, verfallsdatum, ort, kanal FROM lagerbestand WHERE 1=1`
	var params []any

	if locationFilter == domain.LocationWarehouse || locationFilter == domain.LocationMachine {
		query += ` AND ort = ?`
		params = append(params, locationFilter)
	}
	if barcodeFilter != "" {
		if !ValidBarcode(barcodeFilter) {
			return nil, validationf("🚫 Fehler: Ungültiger Barcode-Filter!")
		}
		query += ` AND barcode LIKE ?`
		params = append(params, "%"+barcodeFilter+"%")
	}

	items := []domain.InventoryItem{}
	if err := inv.db.Select(&items, query, params...); err != nil {
		return nil, internalErr(err)
	}
	return items, nil
}

// CountByName sums quantities per medication name.
func (inv *Inventory) CountByName() ([]domain.ItemCount, error) {
	counts := []domain.ItemCount{}
	if err := inv.db.Select(&counts, `SELECT name, SUM(menge) AS total FROM lagerbestand GROUP BY name`); err != nil {
		return nil, internalErr(err)
	}
	return counts, nil
}

// DistinctNames lists every medication name present in stock.
func (inv *Inventory) DistinctNames() ([]string, error) {
	names := []string{}
	if err := inv.db.Select(&names, `SELECT DISTINCT name FROM lagerbestand`); err != nil {
		return nil, internalErr(err)
	}
	return names, nil
}

// TransferToMachine moves a warehouse unit into the dispensing machine and
// assigns it a channel: units of the same medication share one channel,
// otherwise the lowest unused channel number is taken.
func (inv *Inventory) TransferToMachine(actor, barcode string) (*domain.InventoryItem, error) {
	if barcode == "" {
		return nil, validationf("🚫 Fehler: Barcode darf nicht leer sein!")
	}

	var item domain.InventoryItem
	err := inv.db.Get(&item, `SELECT barcode, name, menge, verfallsdatum, ort, kanal FROM lagerbestand WHERE barcode = ?`, barcode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("🚫 Fehler: Ware %s nicht im Lagerbestand!", barcode)
	}
	if err != nil {
		return nil, internalErr(err)
	}
	if item.ExpiryDate < inv.now().Format("2006-01-02") {
		return nil, statef("🚫 Fehler: %s (Barcode: %s) ist abgelaufen und kann nicht in den Automaten verschoben werden!", item.Name, barcode)
	}

	channel, err := inv.channelFor(item.Name)
	if err != nil {
		return nil, err
	}

	if _, err := inv.db.Exec(`UPDATE lagerbestand SET ort = ?, kanal = ? WHERE barcode = ?`,
		domain.LocationMachine, channel, barcode); err != nil {
		return nil, internalErr(err)
	}

	item.Location = domain.LocationMachine
	item.Channel = &channel
	inv.audit.Log(actor, fmt.Sprintf("✅ Ware %s in den Automaten verschoben (Kanal: %s)", item.Name, channel))
	return &item, nil
}

// channelFor reuses the channel already holding units of the same name, or
// assigns the smallest free channel number.
func (inv *Inventory) channelFor(name string) (string, error) {
	var existing []string
	err := inv.db.Select(&existing, `SELECT DISTINCT kanal FROM lagerbestand WHERE name = ? AND ort = ? AND kanal IS NOT NULL`,
		name, domain.LocationMachine)
	if err != nil {
		return "", internalErr(err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	occupied, err := inv.OccupiedChannels()
	if err != nil {
		return "", err
	}
	inUse := make(map[string]bool, len(occupied))
	for _, channel := range occupied {
		inUse[channel] = true
	}
	number := 1
	for inUse[fmt.Sprintf("Kanal %d", number)] {
		number++
	}
	return fmt.Sprintf("Kanal %d", number), nil
}

// TransferToWarehouse moves a machine unit back into the warehouse and frees
// its channel. The vacated channel becomes reusable as soon as no other row
// references it. The vacated channel name is returned.
func (inv *Inventory) TransferToWarehouse(actor, barcode string) (string, error) {
	if barcode == "" {
		return "", validationf("🚫 Fehler: Barcode darf nicht leer sein!")
	}

	var row struct {
		Channel *string `db:"kanal"`
		Name    string  `db:"name"`
	}
	err := inv.db.Get(&row, `SELECT kanal, name FROM lagerbestand WHERE barcode = ? AND ort = ?`, barcode, domain.LocationMachine)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFoundf("🚫 Fehler: Ware %s nicht im Automaten!", barcode)
	}
	if err != nil {
		return "", internalErr(err)
	}

	if _, err := inv.db.Exec(`UPDATE lagerbestand SET ort = ?, kanal = NULL WHERE barcode = ?`,
		domain.LocationWarehouse, barcode); err != nil {
		return "", internalErr(err)
	}

	channel := ""
	if row.Channel != nil {
		channel = *row.Channel
	}
	inv.audit.Log(actor, fmt.Sprintf("✅ Ware %s aus Kanal %s entfernt und zurück ins Lager gelegt.", barcode, channel))
	return channel, nil
}

// OccupiedChannels lists the channels currently holding machine units.
func (inv *Inventory) OccupiedChannels() ([]string, error) {
	channels := []string{}
	err := inv.db.Select(&channels, `SELECT DISTINCT kanal FROM lagerbestand WHERE ort = ? AND kanal IS NOT NULL`, domain.LocationMachine)
	if err != nil {
		return nil, internalErr(err)
	}
	return channels, nil
}
