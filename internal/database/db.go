package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"voxmeter/internal/config"
)

type Database struct {
	*sql.DB
}

// DSN builds a postgres connection string from config.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)
}

func NewPostgresDatabase(cfg config.DatabaseConfig) (Database, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return Database{}, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Minute * 10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if err := db.Close(); err != nil {
			return Database{}, fmt.Errorf("failed to close database: %w", err)
		}
		return Database{}, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Connected to database successfully")
	return Database{DB: db}, nil
}
