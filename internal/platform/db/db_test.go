package db

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/platform/config"
	"hradmin/migrations"
)

func testPool(ctx context.Context, t *testing.T, cfg config.Config) *Pool {
	t.Helper()
	cfg.DatabaseURL = os.Getenv("TEST_DATABASE_URL")
	if cfg.DatabaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Runs against a disposable database named by TEST_DATABASE_URL.
func TestMigrateAndSeedAreIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Config{
		SeedSuperAdminEmail:    "Root@Example.com",
		SeedSuperAdminPassword: "correct horse battery staple",
	}
	pool := testPool(ctx, t, cfg)

	registry := modules.Default()
	for i := 0; i < 2; i++ {
		require.NoError(t, Migrate(ctx, pool, migrations.FS))
		require.NoError(t, Seed(ctx, pool, cfg, registry))
	}

	var catalog int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM org_modules").Scan(&catalog))
	assert.Equal(t, len(registry.All()), catalog)

	var core bool
	require.NoError(t, pool.QueryRow(ctx, "SELECT is_core FROM org_modules WHERE code = $1", string(modules.Recruitment)).Scan(&core))
	assert.False(t, core)

	var admins int
	var hash string
	require.NoError(t, pool.QueryRow(ctx, `
    SELECT count(*) OVER (), password_hash
    FROM users
    WHERE email = 'root@example.com' AND is_super_admin AND organization_id IS NULL AND role_id IS NULL
  `).Scan(&admins, &hash))
	assert.Equal(t, 1, admins)
	assert.NoError(t, auth.CheckPassword(hash, cfg.SeedSuperAdminPassword))
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := testPool(ctx, t, config.Config{DBMaxConns: 2})

	broken := fstest.MapFS{
		"9000_broken.sql": {Data: []byte("CREATE TABLE migrate_partial (id INT); SELECT * FROM no_such_table;")},
	}
	err := Migrate(ctx, pool, broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9000_broken")

	var recorded, created bool
	require.NoError(t, pool.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = '9000_broken'),
           to_regclass('migrate_partial') IS NOT NULL
  `).Scan(&recorded, &created))
	assert.False(t, recorded)
	assert.False(t, created)
}
