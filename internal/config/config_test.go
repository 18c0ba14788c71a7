package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/kpi?sslmode=disable"

rollup:
  trend_window: 8
  concurrency: 2
  bands:
    - {min_achievement: 90, status: green}
    - {min_achievement: 70, status: yellow}
    - {min_achievement: 0, status: red}
  metric_bands:
    labor_cost:
      - {min_achievement: 100, status: red}
      - {min_achievement: 0, status: red}

scheduler:
  enabled: true
  interval_seconds: 600
  tenants: ["T1", "T2"]

archive:
  enabled: true
  type: s3
  s3_bucket: kpi-archive
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/kpi?sslmode=disable", cfg.Database.URL)

	assert.Equal(t, 8, cfg.Rollup.TrendWindow)
	assert.Equal(t, 2, cfg.Rollup.Concurrency)
	require.Len(t, cfg.Rollup.Bands, 3)
	assert.Equal(t, domain.StatusYellow, cfg.Rollup.Bands[1].Status)
	assert.Contains(t, cfg.Rollup.MetricBands, "labor_cost")

	assert.Equal(t, []string{"T1", "T2"}, cfg.Scheduler.Tenants)
	assert.Equal(t, 600, int(cfg.Scheduler.Interval().Seconds()))
	assert.Equal(t, "kpi-archive", cfg.Archive.S3Bucket)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 12, cfg.Rollup.TrendWindow)
	assert.Equal(t, 4, cfg.Rollup.Concurrency)
	assert.Empty(t, cfg.Rollup.Bands)
	assert.Equal(t, 3600, cfg.Scheduler.IntervalSeconds)
	assert.Equal(t, "kpi.daily-corrections", cfg.Kafka.Topic)
	assert.Equal(t, "local", cfg.Archive.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_RejectsInvertedBands(t *testing.T) {
	_, err := Load(writeConfig(t, `
rollup:
  bands:
    - {min_achievement: 90, status: red}
    - {min_achievement: 50, status: green}
`))
	assert.Error(t, err)
}

func TestLoad_S3ArchiveNeedsBucket(t *testing.T) {
	_, err := Load(writeConfig(t, "archive: {enabled: true, type: s3}\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, "archive: {enabled: true, type: s3}\n")
	t.Setenv("DATABASE_URL", "postgres://db/kpi")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ARCHIVE_S3_BUCKET", "from-env")
	t.Setenv("LOG_LEVEL", "debug")

	_, err := Load(path)
	require.Error(t, err)

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/kpi", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-env", cfg.Archive.S3Bucket)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestServerConfig_Addr(t *testing.T) {
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	assert.Equal(t, "localhost:8080", ServerConfig{Host: "localhost", Port: 8080}.Addr())
}
