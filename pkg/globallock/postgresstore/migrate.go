package postgresstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver, required by golang-migrate

	"github.com/sswguo/partyline/internal/logger"
	"github.com/sswguo/partyline/pkg/globallock/postgresstore/migrations"
)

// runMigrations applies the embedded schema to the database named by
// connString. It uses golang-migrate's Postgres advisory locks, so
// concurrent callers from multiple processes are safe.
func runMigrations(ctx context.Context, connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("postgresstore: open for migration: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgresstore: ping for migration: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "partyline_schema_migrations",
		DatabaseName:    "partyline",
	})
	if err != nil {
		return fmt.Errorf("postgresstore: create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("postgresstore: open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgresstore: create migrate instance: %w", err)
	}

	logger.Info("applying global lock store migrations")
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgresstore: migration failed: %w", err)
	}
	return nil
}
