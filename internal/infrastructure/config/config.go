package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

type Config struct {
	Port     string `env:"PORT,      default=3001"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth     AuthConfig
	HTTP     HTTPConfig
	Store    StoreConfig
	Upstream UpstreamConfig

	Mongo MongoConfig
	Redis RedisConfig
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET, required"`
	TokenTTL   time.Duration `env:"TOKEN_TTL,   default=24h"`
	BcryptCost int           `env:"BCRYPT_COST, default=10"`
}

type HTTPConfig struct {
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS,    default=http://localhost:3000"`
	SolveRequireAuth bool     `env:"SOLVE_REQUIRE_AUTH, default=false"`
}

type StoreConfig struct {
	Backend string `env:"STORE_BACKEND, default=memory"`
}

type UpstreamConfig struct {
	BaseURL            string        `env:"DEEPSEEK_BASE_URL,   default=https://api.deepseek.com"`
	APIKey             string        `env:"DEEPSEEK_API_KEY,    required"`
	Model              string        `env:"DEEPSEEK_MODEL,      default=deepseek-chat"`
	Timeout            time.Duration `env:"UPSTREAM_TIMEOUT,    default=60s"`
	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES, default=5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT, default=30s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=solver"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// IsDevelopment reports whether human-friendly defaults (pretty logs) apply.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	switch cfg.Store.Backend {
	case StoreMemory, StoreRedis, StoreMongo:
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
	return &cfg, nil
}
