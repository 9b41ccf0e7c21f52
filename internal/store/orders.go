package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"medlager/m/domain"
	"medlager/m/internal/audit"
	"medlager/m/internal/cart"
)

// Orders is the order ledger: it owns the cart registry, writes order lines
// at checkout and handles cancellation and status transitions.
type Orders struct {
	db    *sqlx.DB
	carts *cart.Registry
	audit *audit.Logger
	now   func() time.Time
}

// NewOrders constructs an Orders store over db.
func NewOrders(db *sqlx.DB, carts *cart.Registry, auditLog *audit.Logger) *Orders {
	return &Orders{db: db, carts: carts, audit: auditLog, now: time.Now}
}

// AddToCart puts a machine-located, non-expired unit into the customer's
// cart. The unit stays in the machine until checkout.
func (o *Orders) AddToCart(customer, barcode string) (*domain.CartItem, error) {
	if barcode == "" {
		return nil, validationf("🚫 Fehler: Barcode darf nicht leer sein!")
	}
	if o.carts.Contains(customer, barcode) {
		return nil, conflictf("🚫 Fehler: Barcode %s ist bereits im Warenkorb!", barcode)
	}

	var row struct {
		Name   string `db:"name"`
		Expiry string `db:"verfallsdatum"`
	}
	err := o.db.Get(&row, `SELECT name, verfallsdatum FROM lagerbestand WHERE barcode = ? AND ort = ?`, barcode, domain.LocationMachine)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, statef("🚫 Fehler: Medikament %s ist nicht im Automaten!", barcode)
	}
	if err != nil {
		return nil, internalErr(err)
	}
	if row.Expiry < o.now().Format("2006-01-02") {
		return nil, statef("⚠️ Fehler: %s (Barcode: %s) ist abgelaufen!", row.Name, barcode)
	}

	item := domain.CartItem{Barcode: barcode, Name: row.Name, ExpiryDate: row.Expiry}
	o.carts.Add(customer, item)
	o.audit.Log(customer, fmt.Sprintf("✅ Medikament %s (Barcode: %s) zum Warenkorb hinzugefügt", row.Name, barcode))
	return &item, nil
}

// Cart returns the customer's pending items.
func (o *Orders) Cart(customer string) []domain.CartItem {
	return o.carts.Items(customer)
}

// ClearCart drops every pending item.
func (o *Orders) ClearCart(customer string) {
	o.carts.Clear(customer)
	o.audit.Log(customer, "🗑 Benutzer hat den Warenkorb geleert")
}

// Checkout turns the cart into order lines under one random six-digit group
// id and removes the ordered units from the inventory. The whole cart commits
// in a single transaction; any failure rolls everything back.
func (o *Orders) Checkout(customer string) (int64, error) {
	if customer == "" {
		return 0, validationf("🚫 Fehler: Kundennummer darf nicht leer sein!")
	}
	items := o.carts.Items(customer)
	if len(items) == 0 {
		return 0, validationf("🚫 Fehler: Warenkorb ist leer!")
	}

	groupID := int64(rand.Intn(900000) + 100000)
	orderedAt := o.now().Format("2006-01-02 15:04:05")

	tx, err := o.db.Beginx()
	if err != nil {
		return 0, internalErr(err)
	}
	defer tx.Rollback()

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)

		var location string
		err := tx.Get(&location, `SELECT ort FROM lagerbestand WHERE barcode = ?`, item.Barcode)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && location != domain.LocationMachine) {
			return 0, statef("🚫 Fehler: %s (Barcode: %s) ist nicht im Automaten und kann nicht bestellt werden!", item.Name, item.Barcode)
		}
		if err != nil {
			return 0, internalErr(err)
		}

		if _, err := tx.Exec(`INSERT INTO bestellungen (bestellgruppe_id, kundennummer, barcode, name, bestelldatum) VALUES (?, ?, ?, ?, ?)`,
			groupID, customer, item.Barcode, item.Name, orderedAt); err != nil {
			return 0, internalErr(err)
		}
		if _, err := tx.Exec(`DELETE FROM lagerbestand WHERE barcode = ?`, item.Barcode); err != nil {
			return 0, internalErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, internalErr(err)
	}

	o.carts.Clear(customer)
	o.audit.Log(customer, fmt.Sprintf("📦 Bestellung %d aufgegeben mit Medikamenten: %s", groupID, strings.Join(names, ", ")))
	return groupID, nil
}

// Cancel returns every open line of the order group to the warehouse and
// marks the lines cancelled. Restocked units get a fresh one-year expiry;
// the rows are preserved, not deleted. A warehouse row that still carries the
// barcode has its quantity bumped instead of a duplicate insert.
func (o *Orders) Cancel(groupID int64, customer string) error {
	if groupID == 0 || customer == "" {
		return validationf("🚫 Fehler: Bestellgruppen-ID und Kundennummer dürfen nicht leer sein!")
	}

	lines := []domain.OrderLine{}
	err := o.db.Select(&lines, `SELECT id, bestellgruppe_id, kundennummer, barcode, name, bestelldatum, status FROM bestellungen
        WHERE bestellgruppe_id = ? AND kundennummer = ? AND status = ?`, groupID, customer, domain.OrderOpen)
	if err != nil {
		return internalErr(err)
	}
	if len(lines) == 0 {
		return notFoundf("🚫 Fehler: Bestellung nicht gefunden oder bereits bearbeitet!")
	}

	restockExpiry := o.now().AddDate(1, 0, 0).Format("2006-01-02")

	tx, err := o.db.Beginx()
	if err != nil {
		return internalErr(err)
	}
	defer tx.Rollback()

	names := make([]string, 0, len(lines))
	for _, line := range lines {
		names = append(names, line.Name)

		var quantity int64
		err := tx.Get(&quantity, `SELECT menge FROM lagerbestand WHERE barcode = ? AND ort = ?`, line.Barcode, domain.LocationWarehouse)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.Exec(`INSERT INTO lagerbestand (barcode, name, menge, verfallsdatum, ort) VALUES (?, ?, 1, ?, ?)`,
				line.Barcode, line.Name, restockExpiry, domain.LocationWarehouse); err != nil {
				return internalErr(err)
			}
		case err != nil:
			return internalErr(err)
		default:
			if _, err := tx.Exec(`UPDATE lagerbestand SET menge = ? WHERE barcode = ? AND ort = ?`,
				quantity+1, line.Barcode, domain.LocationWarehouse); err != nil {
				return internalErr(err)
			}
		}
	}

	if _, err := tx.Exec(`UPDATE bestellungen SET status = ? WHERE bestellgruppe_id = ? AND kundennummer = ?`,
		domain.OrderCancelled, groupID, customer); err != nil {
		return internalErr(err)
	}
	if err := tx.Commit(); err != nil {
		return internalErr(err)
	}

	o.audit.Log(customer, fmt.Sprintf("📦 Bestellung %d storniert, Medikamente zurück ins Lager: %s", groupID, strings.Join(names, ", ")))
	return nil
}

// SetStatus moves every line of the order group to the given status. Admin
// path; approval is the Offen -> Genehmigt transition.
func (o *Orders) SetStatus(actor string, groupID int64, status string) error {
	if status != domain.OrderOpen && status != domain.OrderApproved && status != domain.OrderCancelled {
		return validationf("🚫 Fehler: Ungültiger Bestellstatus %q!", status)
	}

	result, err := o.db.Exec(`UPDATE bestellungen SET status = ? WHERE bestellgruppe_id = ?`, status, groupID)
	if err != nil {
		return internalErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return internalErr(err)
	}
	if affected == 0 {
		return notFoundf("🚫 Fehler: Bestellung nicht gefunden oder bereits bearbeitet!")
	}

	o.audit.Log(actor, fmt.Sprintf("📦 Bestellstatus für ID %d wurde auf '%s' gesetzt.", groupID, status))
	return nil
}

// ListGrouped returns one row per order group of the customer, newest first.
// An empty status defaults to open orders.
func (o *Orders) ListGrouped(customer, status string) ([]domain.OrderGroup, error) {
	if status == "" {
		status = domain.OrderOpen
	}

	groups := []domain.OrderGroup{}
	err := o.db.Select(&groups, `SELECT bestellgruppe_id, kundennummer, GROUP_CONCAT(name, ', ') AS medikamente, bestelldatum, status
        FROM bestellungen
        WHERE kundennummer = ? AND status = ?
        GROUP BY bestellgruppe_id
        ORDER BY bestelldatum DESC`, customer, status)
	if err != nil {
		return nil, internalErr(err)
	}
	return groups, nil
}

// AdminList returns grouped orders across all customers, filtered by optional
// group-id and customer substrings and a status set (all statuses when empty).
func (o *Orders) AdminList(groupFilter, customerFilter string, statuses []string) ([]domain.OrderGroup, error) {
	if len(statuses) == 0 {
		statuses = []string{domain.OrderOpen, domain.OrderApproved, domain.OrderCancelled}
	}

	query := `SELECT bestellgruppe_id, kundennummer, GROUP_CONCAT(name, ', ') AS medikamente, bestelldatum, status
        FROM bestellungen
        WHERE status IN (?)`
	query, args, err := sqlx.In(query, statuses)
	if err != nil {
		return nil, internalErr(err)
	}

	if groupFilter != "" {
		query += ` AND bestellgruppe_id LIKE ?`
		args = append(args, "%"+groupFilter+"%")
	}
	if customerFilter != "" {
		query += ` AND kundennummer LIKE ?`
		args = append(args, "%"+customerFilter+"%")
	}
	query += ` GROUP BY bestellgruppe_id, kundennummer ORDER BY bestelldatum DESC`

	groups := []domain.OrderGroup{}
	if err := o.db.Select(&groups, o.db.Rebind(query), args...); err != nil {
		return nil, internalErr(err)
	}
	return groups, nil
}
