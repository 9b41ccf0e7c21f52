package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"medlager/m/internal/audit"
	"medlager/m/internal/cart"
	"medlager/m/internal/migrations"
)

const testActor = "10000001"

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	migrations.Run(db)
	return db
}

func newTestStores(t *testing.T) (*sqlx.DB, *Inventory, *Warnings, *Orders) {
	t.Helper()
	db := newTestDB(t)
	auditLog := audit.New(filepath.Join(t.TempDir(), "log_protokoll.csv"))
	warnings := NewWarnings(db)
	inventory := NewInventory(db, warnings, auditLog)
	orders := NewOrders(db, cart.NewRegistry(), auditLog)
	return db, inventory, warnings, orders
}

func futureDate(t *testing.T) string {
	t.Helper()
	return time.Now().AddDate(1, 0, 0).Format("2006-01-02")
}
