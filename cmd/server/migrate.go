package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/soaringjerry/pia-workflow/internal/config"
	dbstore "github.com/soaringjerry/pia-workflow/internal/db"
)

// openStore opens the configured database, brings its schema up to date and
// wraps it in the store. The caller owns the returned *sql.DB.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, *dbstore.SQLiteStore, error) {
	conn, err := dbstore.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := dbstore.RunMigrations(ctx, conn, cfg.Database.MigrationsDir, logger); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Database.Path, err)
	}
	store, err := dbstore.NewSQLiteStore(conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	logger.Info("database ready", "path", cfg.Database.Path)
	return conn, store, nil
}
