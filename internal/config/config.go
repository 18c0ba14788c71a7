package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the rollup services.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Rollup    RollupConfig    `yaml:"rollup"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// Lifetime returns the connection lifetime as a duration.
func (c DatabaseConfig) Lifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig enables the trend cache and the Redis lock backend. An empty
// URL disables both.
type RedisConfig struct {
	URL             string `yaml:"url"`
	TrendTTLSeconds int    `yaml:"trend_ttl_seconds"`
}

// TrendTTL returns the trend cache TTL.
func (c RedisConfig) TrendTTL() time.Duration {
	return time.Duration(c.TrendTTLSeconds) * time.Second
}

// KafkaConfig holds the correction consumer settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// RollupConfig holds engine tuning and status bands.
type RollupConfig struct {
	TrendWindow int `yaml:"trend_window"`
	// Concurrency bounds the per-metric fan-out of batch operations.
	Concurrency int                       `yaml:"concurrency"`
	Bands       domain.BandSet            `yaml:"bands"`
	MetricBands map[string]domain.BandSet `yaml:"metric_bands"`
}

// SchedulerConfig drives the periodic auto-aggregation.
type SchedulerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	LockTTLSeconds  int      `yaml:"lock_ttl_seconds"`
	Tenants         []string `yaml:"tenants"` // empty: every tenant with KPI configuration
}

// Interval returns the tick interval as a duration
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns the per-tenant lock TTL.
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ArchiveConfig selects where monthly snapshots are written.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Type       string `yaml:"type"` // "local" or "s3"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // empty uses the default credential chain
	// Static keys are only read from the environment.
	AWSAccessKey string `yaml:"-"`
	AWSSecretKey string `yaml:"-"`
}

// LoggingConfig holds the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.TrendTTLSeconds == 0 {
		cfg.Redis.TrendTTLSeconds = 900
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "kpi.daily-corrections"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "kpi-rollup"
	}
	if cfg.Rollup.TrendWindow == 0 {
		cfg.Rollup.TrendWindow = 12
	}
	if cfg.Rollup.Concurrency == 0 {
		cfg.Rollup.Concurrency = 4
	}
	if cfg.Scheduler.IntervalSeconds == 0 {
		cfg.Scheduler.IntervalSeconds = 3600
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 900
	}
	if cfg.Archive.Type == "" {
		cfg.Archive.Type = "local"
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "./data/archive"
	}
	if cfg.Archive.S3Prefix == "" {
		cfg.Archive.S3Prefix = "kpi-monthly"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return &cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if err := c.Rollup.Bands.Validate(); err != nil {
		return fmt.Errorf("rollup.bands: %w", err)
	}
	for code, set := range c.Rollup.MetricBands {
		if err := set.Validate(); err != nil {
			return fmt.Errorf("rollup.metric_bands.%s: %w", code, err)
		}
	}
	if c.Rollup.Concurrency < 0 {
		return fmt.Errorf("rollup.concurrency must not be negative")
	}
	switch c.Archive.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("archive.type %q: want local or s3", c.Archive.Type)
	}
	if c.Archive.Enabled && c.Archive.Type == "s3" && c.Archive.S3Bucket == "" {
		return fmt.Errorf("archive.s3_bucket is required for the s3 archive")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is read first when present, so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
	}
	if v := os.Getenv("ARCHIVE_AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Archive.AWSAccessKey = v
	}
	if v := os.Getenv("ARCHIVE_AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Archive.AWSSecretKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
