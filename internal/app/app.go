// Package app assembles the reconciliation service from a Config: the
// store backend, the market data provider with its Redis or in-process cache,
// the ticker mapping, and the valuation engine.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/position-engine/internal/config"
	"github.com/atmx/position-engine/internal/marketdata"
	"github.com/atmx/position-engine/internal/reconcile"
	"github.com/atmx/position-engine/internal/store"
	"github.com/atmx/position-engine/internal/ticker"
	"github.com/atmx/position-engine/internal/valuation"
)

// App holds the wired collaborators. Close releases them in reverse
// order of acquisition.
type App struct {
	Store     store.Store
	Prices    marketdata.Provider
	Resolver  *ticker.Resolver
	Reconcile *reconcile.Service

	cleanup []func()
}

// Options adjust what New wires beyond the Config.
type Options struct {
	DryRun bool

	// Prices replaces the configured market data provider when set.
	Prices marketdata.Provider
}

// New opens every dependency named by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{}

	// --- Store ---
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.cleanup = append(a.cleanup, func() { st.Close() })

	// --- Tickers ---
	a.Resolver, err = ticker.Load(cfg.TickersPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	slog.Info("ticker mapping loaded", "path", cfg.TickersPath, "assets", a.Resolver.Len())

	// --- Market data ---
	a.Prices = opts.Prices
	if a.Prices == nil {
		a.Prices = marketdata.NewYahooProvider(cfg.MarketDataURL, cfg.MarketDataTimeout)
	}

	// Wrap with a price cache: Redis when configured, in-process otherwise.
	switch {
	case cfg.PriceCacheTTL <= 0:
		slog.Info("price cache disabled")
	case cfg.RedisURL != "":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
		a.Prices = marketdata.NewCachedProvider(a.Prices, rdb, cfg.PriceCacheTTL)
		slog.Info("Redis price cache enabled", "ttl", cfg.PriceCacheTTL)
	default:
		a.Prices = marketdata.NewLocalCachedProvider(a.Prices, cfg.PriceCacheTTL)
		slog.Info("in-process price cache enabled", "ttl", cfg.PriceCacheTTL)
	}

	// --- Valuation + pipeline ---
	engine := valuation.NewEngine(cfg.IncludeFees)
	engine.ZeroCost = cfg.ZeroCost

	a.Reconcile = reconcile.NewService(a.Store, a.Store, a.Resolver, a.Prices, engine, reconcile.Config{
		Exclusions: cfg.ExcludeAssets,
		DryRun:     opts.DryRun,
	})
	return a, nil
}

// Close releases every dependency New acquired.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// OpenStore opens the backend selected by cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend() {
	case config.BackendPostgres:
		st, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to PostgreSQL")
		return st, nil

	case config.BackendSQLite:
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
		return st, nil

	default:
		slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil
	}
}
