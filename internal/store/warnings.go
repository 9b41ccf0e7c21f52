package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"medlager/m/domain"
)

// Warnings maintains the derived table of expiry warnings. It holds one entry
// per expired inventory item and is rebuilt before every read.
type Warnings struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewWarnings constructs a Warnings store over db.
func NewWarnings(db *sqlx.DB) *Warnings {
	return &Warnings{db: db, now: time.Now}
}

// Refresh drops warnings whose item left the inventory and upserts one
// warning per expired item. Repeated calls with unchanged inventory are
// no-ops.
func (w *Warnings) Refresh() error {
	if _, err := w.db.Exec(`DELETE FROM warnungen WHERE barcode NOT IN (SELECT barcode FROM lagerbestand)`); err != nil {
		return internalErr(err)
	}

	today := w.now().Format("2006-01-02")
	expired := []domain.InventoryItem{}
	err := w.db.Select(&expired, `SELECT barcode, name, menge, verfallsdatum, ort, kanal FROM lagerbestand WHERE verfallsdatum < ?`, today)
	if err != nil {
		return internalErr(err)
	}

	for _, item := range expired {
		if err := w.upsert(item.Barcode, item.Name, item.ExpiryDate, item.Location, domain.WarningStatusExpired); err != nil {
			return err
		}
	}
	return nil
}

func (w *Warnings) upsert(barcode, name, expiry, location, status string) error {
	var current struct {
		Location string `db:"ort"`
		Status   string `db:"status"`
	}
	err := w.db.Get(&current, `SELECT ort, status FROM warnungen WHERE barcode = ?`, barcode)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = w.db.Exec(`INSERT INTO warnungen (barcode, name, verfallsdatum, ort, status) VALUES (?, ?, ?, ?, ?)`,
			barcode, name, expiry, location, status)
		if err != nil {
			return internalErr(err)
		}
	case err != nil:
		return internalErr(err)
	case current.Location != location || current.Status != status:
		_, err = w.db.Exec(`UPDATE warnungen SET ort = ?, status = ? WHERE barcode = ?`, location, status, barcode)
		if err != nil {
			return internalErr(err)
		}
	}
	return nil
}

// List refreshes and returns the warnings, optionally filtered by location.
func (w *Warnings) List(locationFilter string) ([]domain.WarningEntry, error) {
	if err := w.Refresh(); err != nil {
		return nil, err
	}

	query := `SELECT barcode, name, verfallsdatum, ort, status FROM warnungen WHERE 1=1`
	var params []any
	if locationFilter == domain.LocationWarehouse || locationFilter == domain.LocationMachine {
		query += ` AND ort = ?`
		params = append(params, locationFilter)
	}

	entries := []domain.WarningEntry{}
	if err := w.db.Select(&entries, query, params...); err != nil {
		return nil, internalErr(err)
	}
	return entries, nil
}
