package config

import (
	"testing"
	"time"

	"github.com/atmx/position-engine/internal/marketdata"
	"github.com/atmx/position-engine/internal/valuation"
)

// clearEnv blanks every variable Load reads so the host environment
// does not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "PRICE_CACHE_TTL",
		"TICKERS_PATH", "EXCLUDE_ASSETS", "INCLUDE_FEES", "ZERO_COST_POLICY",
		"MARKETDATA_URL", "MARKETDATA_TIMEOUT", "PORT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend() != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Backend())
	}
	if !cfg.IncludeFees {
		t.Error("fees should be included by default")
	}
	if cfg.ZeroCost != valuation.ZeroCostAsZero {
		t.Errorf("expected zero policy, got %s", cfg.ZeroCost)
	}
	if cfg.PriceCacheTTL != 15*time.Minute {
		t.Errorf("expected 15m cache ttl, got %s", cfg.PriceCacheTTL)
	}
	if cfg.MarketDataURL != marketdata.DefaultYahooURL {
		t.Errorf("expected default market data url, got %s", cfg.MarketDataURL)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if len(cfg.ExcludeAssets) != 0 {
		t.Errorf("expected no exclusions, got %v", cfg.ExcludeAssets)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLITE_PATH", "/tmp/positions.db")
	t.Setenv("EXCLUDE_ASSETS", " BATS , Diageo,,")
	t.Setenv("INCLUDE_FEES", "false")
	t.Setenv("ZERO_COST_POLICY", "absent")
	t.Setenv("MARKETDATA_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend() != BackendSQLite {
		t.Errorf("expected sqlite backend, got %s", cfg.Backend())
	}
	if len(cfg.ExcludeAssets) != 2 || cfg.ExcludeAssets[0] != "BATS" || cfg.ExcludeAssets[1] != "Diageo" {
		t.Errorf("expected [BATS Diageo], got %v", cfg.ExcludeAssets)
	}
	if cfg.IncludeFees {
		t.Error("expected fees excluded")
	}
	if cfg.ZeroCost != valuation.ZeroCostAsAbsent {
		t.Errorf("expected absent policy, got %s", cfg.ZeroCost)
	}
	if cfg.MarketDataTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %s", cfg.MarketDataTimeout)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/positions")
	cfg, _ = Load()
	if cfg.Backend() != BackendPostgres {
		t.Errorf("DATABASE_URL should take precedence, got %s", cfg.Backend())
	}
}

func TestLoad_ZeroCacheTTLDisablesCache(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRICE_CACHE_TTL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PriceCacheTTL != 0 {
		t.Errorf("expected zero cache ttl, got %s", cfg.PriceCacheTTL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PRICE_CACHE_TTL", "soon"},
		{"PRICE_CACHE_TTL", "-1m"},
		{"MARKETDATA_TIMEOUT", "0s"},
		{"INCLUDE_FEES", "maybe"},
		{"ZERO_COST_POLICY", "infinite"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
