package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"knowspace/api/db/migrations"
)

// ApplyMigrations runs every pending goose migration embedded in db/migrations.
func ApplyMigrations(ctx context.Context, databaseURL string) error {
	return withGoose(databaseURL, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, "."); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// ResetMigrations rolls every migration back. Used by integration tests.
func ResetMigrations(ctx context.Context, databaseURL string) error {
	return withGoose(databaseURL, func(db *sql.DB) error {
		if err := goose.ResetContext(ctx, db, "."); err != nil {
			return fmt.Errorf("reset migrations: %w", err)
		}
		return nil
	})
}

func withGoose(databaseURL string, fn func(*sql.DB) error) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration db: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn(db)
}
