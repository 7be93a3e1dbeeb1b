package database

import (
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/playrally/backend/internal/config"
)

// Connect opens the PostgreSQL pool sized from config. Match finalization
// and settlement share this pool with the HTTP API.
func Connect(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifeMins) * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	log.Printf("[DB] Connected (pool max_open=%d max_idle=%d)", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	return db, nil
}
