package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds runtime configuration for the activities API and auditctl.
type Config struct {
	Addr               string        `env:"ADDR,default=:8080"`
	StoreDriver        string        `env:"STORE_DRIVER,default=sqlite"`
	SQLitePath         string        `env:"SQLITE_PATH,default=data/activities.db"`
	DBDSN              string        `env:"DB_DSN"`
	RetentionDays      int           `env:"AUDIT_RETENTION_DAYS,default=90"`
	SweepInterval      time.Duration `env:"AUDIT_SWEEP_INTERVAL,default=24h"`
	AdminToken         string        `env:"ADMIN_TOKEN"`
	AdminJWTSecret     string        `env:"ADMIN_JWT_SECRET"`
	NATSURL            string        `env:"NATS_URL"`
	OTLPEndpoint       string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AllowedOrigins     []string      `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE,default=100"`
	LogLevel           string        `env:"LOG_LEVEL,default=info"`
	LogFormat          string        `env:"LOG_FORMAT,default=json"`
	SeedFile           string        `env:"ACTIVITIES_SEED_FILE"`
	S3Bucket           string        `env:"S3_BUCKET"`
	StaticDir          string        `env:"STATIC_DIR"`
}

// Load returns a validated Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be non-negative, got %d", c.RetentionDays)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("AUDIT_SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be non-negative, got %d", c.RateLimitPerMinute)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// AdminConfigured reports whether any admin credential is set.
func (c Config) AdminConfigured() bool {
	return c.AdminToken != "" || c.AdminJWTSecret != ""
}
