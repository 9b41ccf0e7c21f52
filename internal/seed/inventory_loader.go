package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"medlager/m/domain"
)

// LoadInventory ingests the CSV (barcode, name, verfallsdatum[, ort]) into
// the stock table, ignoring duplicates. Missing files are not an error; the
// seed is optional.
func LoadInventory(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load inventory seed %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read inventory seed header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start inventory seed transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO lagerbestand (barcode, name, menge, verfallsdatum, ort) VALUES (?, ?, 1, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare inventory seed insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read inventory seed row: %v", err)
			continue
		}
		if len(record) < 3 {
			continue
		}
		barcode := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		expiry := strings.TrimSpace(record[2])
		location := domain.LocationWarehouse
		if len(record) > 3 && strings.TrimSpace(record[3]) == domain.LocationMachine {
			location = domain.LocationMachine
		}

		if barcode == "" || name == "" {
			continue
		}

		if _, err := stmt.Exec(barcode, name, expiry, location); err != nil {
			log.Printf("unable to insert seed item %s: %v", barcode, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit inventory seed: %v", err)
	} else {
		log.Printf("seeded inventory with %d rows", rows)
	}
}
