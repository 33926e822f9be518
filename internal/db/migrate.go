package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/udisondev/levspool/internal/db/migrations"
)

// RunMigrations runs goose migrations on the given DSN.
func RunMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()
	return up(ctx, sqlDB)
}

// MigratePool runs goose migrations over the connection config of an
// existing pool.
func MigratePool(ctx context.Context, pool *pgxpool.Pool) error {
	connStr := stdlib.RegisterConnConfig(pool.Config().ConnConfig)
	defer stdlib.UnregisterConnConfig(connStr)

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql.DB: %w", err)
	}
	defer sqlDB.Close()
	return up(ctx, sqlDB)
}

func up(ctx context.Context, sqlDB *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
