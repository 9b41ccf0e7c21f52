package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the inventory, warning and order tables.
func Run(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS lagerbestand (
            barcode TEXT PRIMARY KEY,
            name TEXT,
            menge INTEGER,
            verfallsdatum TEXT,
            ort TEXT DEFAULT 'Lager',
            kanal TEXT DEFAULT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS warnungen (
            barcode TEXT PRIMARY KEY,
            name TEXT,
            verfallsdatum TEXT,
            ort TEXT,
            status TEXT DEFAULT 'Offen'
        );`,
		`CREATE TABLE IF NOT EXISTS bestellungen (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            bestellgruppe_id INTEGER,
            kundennummer TEXT,
            barcode TEXT,
            name TEXT,
            bestelldatum TEXT,
            status TEXT DEFAULT 'Offen'
        );`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}

// RunUsers creates the account table in the separate user database.
func RunUsers(db *sqlx.DB) {
	stmt := `CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        kundennummer TEXT UNIQUE,
        username TEXT UNIQUE,
        password_hash TEXT,
        role TEXT DEFAULT 'user'
    );`
	if _, err := db.Exec(stmt); err != nil {
		log.Fatalf("user migration failed: %v", err)
	}
}
