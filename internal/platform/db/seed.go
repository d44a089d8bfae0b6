package db

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/platform/config"
)

// Seed syncs the module catalog into org_modules and makes sure the initial
// super admin exists. It is safe to run on every start.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, registry *modules.Registry) error {
	if err := ensureModules(ctx, pool, registry); err != nil {
		return err
	}
	return ensureSuperAdmin(ctx, pool, cfg.SeedSuperAdminEmail, cfg.SeedSuperAdminPassword)
}

func ensureModules(ctx context.Context, pool *pgxpool.Pool, registry *modules.Registry) error {
	batch := &pgx.Batch{}
	for _, m := range registry.All() {
		batch.Queue(`
      INSERT INTO org_modules (code, name, description, scope, is_core)
      VALUES ($1,$2,$3,$4,$5)
      ON CONFLICT (code)
      DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
                    scope = EXCLUDED.scope, is_core = EXCLUDED.is_core
    `, string(m.Code), m.Name, m.Description, string(m.Scope), m.Core)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func ensureSuperAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	err = pool.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, full_name, is_super_admin)
    VALUES ($1, $2, 'Super Admin', true)
    RETURNING id
  `, email, hash).Scan(&id)
	if err != nil {
		return err
	}
	slog.Info("super admin seeded", "userId", id, "email", email)
	return nil
}
