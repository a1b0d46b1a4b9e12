package config

import (
	"fmt"
	"time"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/session"
	pkgconfig "github.com/labqa/qualitylab/pkg/config"
	"github.com/labqa/qualitylab/pkg/database"
	"github.com/labqa/qualitylab/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Credential store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds all configuration for the qualitylab service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"qualitylab"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// PostgreSQL
	PostgresHost         string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string `env:"POSTGRES_USER" envDefault:"qualitylab"`
	PostgresPass         string `env:"POSTGRES_PASSWORD" envDefault:"qualitylab_secret"`
	PostgresDB           string `env:"POSTGRES_DB" envDefault:"qualitylab"`
	PostgresSSL          string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns           int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns           int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThresholdMS int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Credential store
	CredentialStore string        `env:"CREDENTIAL_STORE" envDefault:"postgres"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	// Redis, used when CredentialStore is "redis" and for consumer dedupe.
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled       bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaIdentityTopic string   `env:"KAFKA_IDENTITY_TOPIC" envDefault:"qualitylab.identity.changed"`
	KafkaGroupID       string   `env:"KAFKA_GROUP_ID" envDefault:"qualitylab-auth"`

	// Tokens
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAlgorithm    string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	GateMode        string        `env:"GATE_MODE" envDefault:"trusting"`

	// Login and registration rate limit, per client IP.
	LoginRateLimitRPS   float64 `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"1"`
	LoginRateLimitBurst int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"5"`
	// Only these peers may name the client in X-Forwarded-For.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// pprof is served only to these networks.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load qualitylab config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWTAlgorithm)
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}

	switch c.CredentialStore {
	case StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("unknown CREDENTIAL_STORE %q", c.CredentialStore)
	}
	if _, err := session.ParseMode(c.GateMode); err != nil {
		return fmt.Errorf("GATE_MODE: %w", err)
	}

	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTelSampleRate)
	}
	return nil
}

// Postgres returns the pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.DBMaxConns
	pg.MinConns = c.DBMinConns
	return pg
}

func (c *Config) Redis() database.RedisConfig {
	r := database.DefaultRedisConfig()
	r.Host = c.RedisHost
	r.Port = c.RedisPort
	r.Password = c.RedisPassword
	r.DB = c.RedisDB
	return r
}

func (c *Config) Tracing() tracing.Config {
	t := tracing.DefaultConfig(c.ServiceName)
	t.Environment = c.Environment
	t.OTLPEndpoint = c.OTelEndpoint
	t.Insecure = c.OTelInsecure
	t.SampleRate = c.OTelSampleRate
	t.Enabled = c.OTelEnabled
	return t
}

// Mode returns the validated gate mode.
func (c *Config) Mode() session.Mode {
	m, _ := session.ParseMode(c.GateMode)
	return m
}

// SlowQueryThreshold is zero when slow query logging is disabled.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMS) * time.Millisecond
}

// TokenTTLs returns the access and refresh lifetimes, falling back to the
// auth package defaults.
func (c *Config) TokenTTLs() (access, refresh time.Duration) {
	access, refresh = c.AccessTokenTTL, c.RefreshTokenTTL
	if access <= 0 {
		access = auth.DefaultAccessTTL
	}
	if refresh <= 0 {
		refresh = auth.DefaultRefreshTTL
	}
	return access, refresh
}
