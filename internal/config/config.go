package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	DatabaseDSN string
	UsersDSN    string
	AuditLog    string
	SeedCSV     string
	HTTPPort    string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "lagerbestand.db"
	}

	usersDSN := os.Getenv("USERS_DSN")
	if usersDSN == "" {
		usersDSN = "users.db"
	}

	auditLog := os.Getenv("AUDIT_LOG")
	if auditLog == "" {
		auditLog = "logs/log_protokoll.csv"
	}

	// Optional; seeding is skipped when unset or the file does not exist.
	seedCSV := os.Getenv("SEED_CSV")

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		Secret:      secret,
		DatabaseDSN: dsn,
		UsersDSN:    usersDSN,
		AuditLog:    auditLog,
		SeedCSV:     seedCSV,
		HTTPPort:    port,
	}
}
