package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLock serializes replicas that start at the same time.
const migrationLock int64 = 0x6872_6164_6d69_6e

// Migrate applies the *.sql files of schema that schema_migrations does not
// list yet, in name order. Each file commits together with its version row.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema fs.FS) error {
	names, err := fs.Glob(schema, "*.sql")
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `
    CREATE TABLE IF NOT EXISTS schema_migrations (
      version TEXT PRIMARY KEY,
      applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`); err != nil {
		return err
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		script, err := fs.ReadFile(schema, name)
		if err != nil {
			return err
		}
		applied, err := applyMigration(ctx, pool, version, string(script))
		if err != nil {
			return fmt.Errorf("migration %s: %w", version, err)
		}
		if applied {
			slog.Info("migration applied", "version", version)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, version, script string) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
			return err
		}
		var done bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&done); err != nil {
			return err
		}
		if done {
			return nil
		}
		if _, err := tx.Exec(ctx, script); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
