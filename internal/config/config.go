// Package config reads the engine settings from the environment, after
// loading a .env file when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/atmx/position-engine/internal/marketdata"
	"github.com/atmx/position-engine/internal/valuation"
)

// Backend names the store a run reads from and writes to.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

type Config struct {
	DatabaseURL string // PostgreSQL DSN; takes precedence over SQLitePath
	SQLitePath  string

	RedisURL      string // optional price cache
	PriceCacheTTL time.Duration // 0 disables price caching

	TickersPath   string   // JSON {"asset": "SYMBOL"}
	ExcludeAssets []string // dropped from every snapshot

	IncludeFees bool
	ZeroCost    valuation.ZeroCostPolicy

	MarketDataURL     string
	MarketDataTimeout time.Duration

	Port string
}

// Backend reports which store the configuration selects.
func (c *Config) Backend() Backend {
	switch {
	case c.DatabaseURL != "":
		return BackendPostgres
	case c.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		RedisURL:      os.Getenv("REDIS_URL"),
		TickersPath:   getEnvDefault("TICKERS_PATH", "tickers.json"),
		ExcludeAssets: splitList(os.Getenv("EXCLUDE_ASSETS")),
		MarketDataURL: getEnvDefault("MARKETDATA_URL", marketdata.DefaultYahooURL),
		Port:          getEnvDefault("PORT", "8080"),
	}

	var err error
	if cfg.PriceCacheTTL, err = time.ParseDuration(getEnvDefault("PRICE_CACHE_TTL", "15m")); err != nil {
		return nil, fmt.Errorf("PRICE_CACHE_TTL: %w", err)
	}
	if cfg.MarketDataTimeout, err = time.ParseDuration(getEnvDefault("MARKETDATA_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("MARKETDATA_TIMEOUT: %w", err)
	}
	if cfg.IncludeFees, err = strconv.ParseBool(getEnvDefault("INCLUDE_FEES", "true")); err != nil {
		return nil, fmt.Errorf("INCLUDE_FEES must be a boolean, got %q", os.Getenv("INCLUDE_FEES"))
	}
	if cfg.ZeroCost, err = valuation.ParseZeroCostPolicy(os.Getenv("ZERO_COST_POLICY")); err != nil {
		return nil, fmt.Errorf("ZERO_COST_POLICY: %w", err)
	}

	if cfg.PriceCacheTTL < 0 {
		return nil, fmt.Errorf("PRICE_CACHE_TTL must not be negative, got %s", cfg.PriceCacheTTL)
	}
	if cfg.MarketDataTimeout <= 0 {
		return nil, fmt.Errorf("MARKETDATA_TIMEOUT must be positive, got %s", cfg.MarketDataTimeout)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
