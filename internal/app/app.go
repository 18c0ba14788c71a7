// Package app wires configuration, storage and the engine for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/cache"
	"github.com/ignite/kpi-rollup/internal/config"
	"github.com/ignite/kpi-rollup/internal/pkg/distlock"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
	"github.com/ignite/kpi-rollup/internal/repository/postgres"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/ignite/kpi-rollup/internal/trend"
)

// App holds the long-lived collaborators shared by server, worker and CLI.
type App struct {
	Config       *config.Config
	DB           *sql.DB
	Redis        *redis.Client // nil when Redis is not configured
	Summaries    *postgres.SummaryRepo
	KPIConfigs   *postgres.KPIConfigRepo
	Engine       *rollup.Service
	Orchestrator *backfill.Orchestrator
	Trends       *trend.Analyzer
}

// DefaultConfigPath is used when CONFIG_PATH is unset.
const DefaultConfigPath = "config/config.yaml"

// LoadConfig loads configuration with environment overrides and applies the
// configured log level. An empty path uses CONFIG_PATH or DefaultConfigPath.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	logger.SetLevel(level)
	return cfg, nil
}

// OpenDB opens and pings the Postgres pool.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Lifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis. An empty URL returns a nil client. A Redis
// that cannot be reached is logged and treated as absent so the services
// fall back to uncached trends and Postgres advisory locks.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without cache", "error", err)
		client.Close()
		return nil, nil
	}
	return client, nil
}

// New opens the database and Redis and builds the engine.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := OpenRedis(ctx, cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, err
	}
	return Build(cfg, db, rdb), nil
}

// Build wires the engine on top of already opened connections. rdb may be
// nil.
func Build(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	tenants := postgres.NewTenantRepo(db)
	catalog := postgres.NewCatalogRepo(db)
	summaries := postgres.NewSummaryRepo(db)
	kpiConfigs := postgres.NewKPIConfigRepo(db)

	opts := []rollup.Option{
		rollup.WithBands(rollup.StaticBands{Default: cfg.Rollup.Bands, PerMetric: cfg.Rollup.MetricBands}),
	}
	var trendCache trend.Cache
	if rdb != nil {
		tc := cache.NewTrendCache(rdb, cfg.Redis.TrendTTL())
		opts = append(opts, rollup.WithWriteHook(tc.OnWeeklyWrite))
		trendCache = tc
	}

	engine := rollup.NewService(rollup.Deps{
		Tenants: tenants,
		Catalog: catalog,
		Ledger:  postgres.NewLedgerRepo(db),
		Plans:   postgres.NewPlanRepo(db),
		Store:   summaries,
	}, opts...)

	return &App{
		Config:       cfg,
		DB:           db,
		Redis:        rdb,
		Summaries:    summaries,
		KPIConfigs:   kpiConfigs,
		Engine:       engine,
		Orchestrator: backfill.New(engine, kpiConfigs, backfill.WithConcurrency(cfg.Rollup.Concurrency)),
		Trends:       trend.NewAnalyzer(tenants, catalog, summaries, trendCache, cfg.Rollup.TrendWindow),
	}
}

// Locks returns the lock factory for per-tenant scheduling.
func (a *App) Locks() distlock.Factory {
	return distlock.Factory{Redis: a.Redis, DB: a.DB, TTL: a.Config.Scheduler.LockTTL()}
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
