package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	DedupLockTTL      time.Duration `mapstructure:"DEDUP_LOCK_TTL"`
	DependentsFile    string        `mapstructure:"DEPENDENTS_FILE"`
	MergeWorkers      int           `mapstructure:"MERGE_WORKERS"`
	MergeOpsPerSecond float64       `mapstructure:"MERGE_OPS_PER_SECOND"`

	AdminJWTSecret string  `mapstructure:"ADMIN_JWT_SECRET"`
	AuthIssuer     string  `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string  `mapstructure:"AUTH_AUDIENCE"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string  `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_SCHEMA", "REDIS_URL", "DEDUP_LOCK_TTL", "DEPENDENTS_FILE", "MERGE_WORKERS",
	"MERGE_OPS_PER_SECOND", "ADMIN_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DEDUP_LOCK_TTL", "15m")
	v.SetDefault("MERGE_WORKERS", 1)
	v.SetDefault("MERGE_OPS_PER_SECOND", 0)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1MiB")

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverSQLite {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}
	if !c.IsDev() && c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.MergeWorkers < 1 {
		return fmt.Errorf("MERGE_WORKERS must be at least 1, got %d", c.MergeWorkers)
	}
	if c.MergeOpsPerSecond < 0 {
		return fmt.Errorf("MERGE_OPS_PER_SECOND must not be negative, got %v", c.MergeOpsPerSecond)
	}
	if c.DedupLockTTL <= 0 {
		return fmt.Errorf("DEDUP_LOCK_TTL must be positive, got %s", c.DedupLockTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
