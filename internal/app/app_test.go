package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/kpi-rollup/internal/config"
	"github.com/ignite/kpi-rollup/internal/pkg/distlock"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
)

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()

	client, err := OpenRedis(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = OpenRedis(ctx, "://nope")
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client, err = OpenRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()

	// Unreachable Redis degrades to no client.
	addr := mr.Addr()
	mr.Close()
	client, err = OpenRedis(ctx, "redis://"+addr)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOpenDB_RequiresURL(t *testing.T) {
	_, err := OpenDB(context.Background(), config.DatabaseConfig{})
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestBuild(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{}
	cfg.Scheduler.LockTTLSeconds = 60

	a := Build(cfg, db, nil)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Trends)
	// Without Redis the scheduler falls back to advisory locks.
	_, isPG := a.Locks().For(distlock.TenantRollupKey("T1")).(*distlock.PGAdvisoryLock)
	assert.True(t, isPG)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb, err := OpenRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	a = Build(cfg, db, rdb)
	_, isRedis := a.Locks().For(distlock.TenantRollupKey("T1")).(*distlock.RedisLock)
	assert.True(t, isRedis)
	a.Redis.Close()
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))
	t.Setenv("DATABASE_URL", "postgres://localhost/kpi?sslmode=disable")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/kpi?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
	logger.SetLevel(logger.INFO)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: chatty\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
