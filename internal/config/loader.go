package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opsdesk/opsdesk/internal/domain/membership"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "opsdesk.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "OPSDESK_PORT")
	setString(&cfg.Server.CORSOrigin, "OPSDESK_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "OPSDESK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "OPSDESK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "OPSDESK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "OPSDESK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "OPSDESK_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.Auth.Enabled, "OPSDESK_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "OPSDESK_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenTTL, "OPSDESK_ACCESS_TOKEN_TTL")
	setInt(&cfg.Auth.BcryptCost, "OPSDESK_BCRYPT_COST")
	setDuration(&cfg.Authz.StoreTimeout, "OPSDESK_AUTHZ_STORE_TIMEOUT")
	setDuration(&cfg.Authz.SnapshotTTL, "OPSDESK_AUTHZ_SNAPSHOT_TTL")
	setInt(&cfg.Audit.Workers, "OPSDESK_AUDIT_WORKERS")
	setDuration(&cfg.Audit.WriteTimeout, "OPSDESK_AUDIT_WRITE_TIMEOUT")
	setInt(&cfg.Audit.MaxDeliver, "OPSDESK_AUDIT_MAX_DELIVER")
	setDuration(&cfg.Audit.RetryDelay, "OPSDESK_AUDIT_RETRY_DELAY")
	setInt(&cfg.Audit.BreakerMaxFailures, "OPSDESK_AUDIT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Audit.BreakerTimeout, "OPSDESK_AUDIT_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "OPSDESK_CACHE_SIZE_MB")
	setBool(&cfg.Cache.Shared, "OPSDESK_CACHE_SHARED")
	setString(&cfg.Logging.Level, "OPSDESK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "OPSDESK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "OPSDESK_LOG_ASYNC")
	setFloat64(&cfg.Rate.RequestsPerSecond, "OPSDESK_RATE_RPS")
	setInt(&cfg.Rate.Burst, "OPSDESK_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "OPSDESK_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "OPSDESK_RATE_MAX_IDLE_TIME")
	setBool(&cfg.Otel.Enabled, "OPSDESK_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OPSDESK_OTEL_ENDPOINT")
}

// validate checks that required fields are set and that the role hierarchy
// table is complete before the service starts taking authorization
// decisions.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	if cfg.Audit.MaxDeliver < 1 {
		return errors.New("audit.max_deliver must be >= 1")
	}
	if cfg.Audit.BreakerMaxFailures < 1 {
		return errors.New("audit.breaker_max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if err := membership.ValidateHierarchy(); err != nil {
		return fmt.Errorf("role hierarchy: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
