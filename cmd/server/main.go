package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"medlager/m/internal/api"
	"medlager/m/internal/audit"
	"medlager/m/internal/cart"
	"medlager/m/internal/config"
	"medlager/m/internal/database"
	"medlager/m/internal/migrations"
	"medlager/m/internal/seed"
	"medlager/m/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()
	users := database.Connect(cfg.UsersDSN)
	defer users.Close()

	migrations.Run(db)
	migrations.RunUsers(users)
	if cfg.SeedCSV != "" {
		seed.LoadInventory(db, cfg.SeedCSV)
	}

	auditLog := audit.New(cfg.AuditLog)
	warnings := store.NewWarnings(db)
	inventory := store.NewInventory(db, warnings, auditLog)
	orders := store.NewOrders(db, cart.NewRegistry(), auditLog)

	handler := api.New(users, inventory, warnings, orders, auditLog, cfg.Secret)

	log.Printf("medication warehouse server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
