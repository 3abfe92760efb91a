// Package reconcile runs the end-to-end position reconciliation: it reads
// the ledger, matches lots FIFO, aggregates and values the open positions,
// and replaces the persisted snapshot.
//
// All monetary values use shopspring/decimal. Per-asset problems (missing
// ticker, missing price, oversold asset) never abort a run; they are logged
// and counted. Ledger and persistence failures do.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/fifo"
	"github.com/atmx/position-engine/internal/marketdata"
	"github.com/atmx/position-engine/internal/metrics"
	"github.com/atmx/position-engine/internal/model"
	"github.com/atmx/position-engine/internal/portfolio"
	"github.com/atmx/position-engine/internal/store"
	"github.com/atmx/position-engine/internal/ticker"
	"github.com/atmx/position-engine/internal/valuation"
)

// Config tunes a Service.
type Config struct {
	// Exclusions lists asset ids dropped from the snapshot after valuation.
	Exclusions []string

	// DryRun computes the snapshot without replacing the persisted one.
	DryRun bool
}

// Service wires the collaborators of one reconciliation. Runs are
// serialized so two snapshots never race to replace each other.
type Service struct {
	ledger    store.LedgerReader
	positions store.PositionStore
	resolver  *ticker.Resolver
	prices    marketdata.Provider
	engine    *valuation.Engine
	cfg       Config
	mu        sync.Mutex
}

// NewService creates a reconciliation service. positions may be nil when
// cfg.DryRun is set.
func NewService(
	ledger store.LedgerReader,
	positions store.PositionStore,
	resolver *ticker.Resolver,
	prices marketdata.Provider,
	engine *valuation.Engine,
	cfg Config,
) *Service {
	return &Service{
		ledger:    ledger,
		positions: positions,
		resolver:  resolver,
		prices:    prices,
		engine:    engine,
		cfg:       cfg,
	}
}

// Run performs one reconciliation and returns the resulting snapshot.
func (s *Service) Run(ctx context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	snap, err := s.run(ctx)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		slog.Error("reconciliation failed", "err", err)
		return nil, err
	}

	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	metrics.OpenPositions.Set(float64(len(snap.Positions)))

	slog.Info("reconciliation complete",
		"run_id", snap.RunID,
		"positions", len(snap.Positions),
		"invested", snap.Totals.Invested.String(),
		"current_value", snap.Totals.CurrentValue.String(),
		"gain", snap.Totals.Gain.String(),
		"dry_run", s.cfg.DryRun,
		"elapsed", time.Since(start),
	)
	return snap, nil
}

// Latest returns the last persisted snapshot.
func (s *Service) Latest(ctx context.Context) (*model.Snapshot, error) {
	if s.positions == nil {
		return nil, store.ErrNoSnapshot
	}
	return s.positions.LatestSnapshot(ctx)
}

func (s *Service) run(ctx context.Context) (*model.Snapshot, error) {
	runID := uuid.New().String()

	// --- Ledger ---
	buys, err := s.ledger.Buys(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: read buys: %w", err)
	}
	sells, err := s.ledger.Sells(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: read sells: %w", err)
	}

	// --- FIFO matching + aggregation ---
	matched, err := fifo.Match(buys, sells)
	if err != nil {
		return nil, fmt.Errorf("reconcile: match lots: %w", err)
	}
	for _, o := range matched.Oversold {
		metrics.AssetAnomalies.WithLabelValues(metrics.AnomalyOversold).Inc()
		slog.Warn("sells exceed buys",
			"run_id", runID,
			"asset", o.AssetID,
			"unmatched", o.Unmatched.String(),
		)
	}
	summaries := portfolio.Aggregate(matched.Lots)

	// --- Tickers ---
	assets := make([]string, len(summaries))
	for i, sum := range summaries {
		assets[i] = sum.AssetID
	}
	symbols, missing := s.resolver.ResolveAll(assets)
	if len(missing) > 0 {
		metrics.AssetAnomalies.WithLabelValues(metrics.AnomalyMissingTicker).Add(float64(len(missing)))
		slog.Warn("assets without ticker mapping", "run_id", runID, "assets", missing)
	}

	// --- Prices: one batched request ---
	quotes, fetchErr := s.fetchPrices(ctx, symbols)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reconcile: fetch prices: %w", ctx.Err())
		}
		slog.Warn("market data unavailable, continuing without prices",
			"run_id", runID,
			"err", fetchErr,
		)
	}

	// --- Valuation ---
	valued := make([]model.ValuedPosition, 0, len(summaries))
	for _, sum := range summaries {
		sym, ok := symbols[sum.AssetID]
		if !ok {
			vp := s.engine.Value(sum, decimal.NullDecimal{})
			vp.PriceStatus = model.PriceMissingTicker
			valued = append(valued, vp)
			continue
		}

		price, answered := quotes[sym]
		vp := s.engine.Value(sum, price)
		vp.Ticker = sym
		if !answered && fetchErr != nil {
			vp.PriceStatus = model.PriceUnavailable
		}
		if vp.PriceStatus != model.PriceOK {
			metrics.AssetAnomalies.WithLabelValues(metrics.AnomalyMissingPrice).Inc()
			slog.Warn("no current price",
				"run_id", runID,
				"asset", sum.AssetID,
				"ticker", sym,
				"status", string(vp.PriceStatus),
			)
		}
		valued = append(valued, vp)
	}

	positions := valuation.Exclude(valued, s.cfg.Exclusions)
	snap := &model.Snapshot{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Positions: positions,
		Totals:    valuation.Totals(positions),
	}

	// --- Persistence ---
	if s.cfg.DryRun {
		return snap, nil
	}
	if s.positions == nil {
		return nil, fmt.Errorf("reconcile: %w: no position store configured", store.ErrPersistence)
	}
	if err := s.positions.ReplaceOpenPositions(ctx, snap); err != nil {
		return nil, fmt.Errorf("reconcile: persist snapshot: %w", err)
	}
	return snap, nil
}

// fetchPrices issues a single provider call for every resolved symbol.
// Quotes answered before a failure are kept.
func (s *Service) fetchPrices(ctx context.Context, symbols map[string]string) (marketdata.Quotes, error) {
	if len(symbols) == 0 {
		return marketdata.Quotes{}, nil
	}

	list := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if !seen[sym] {
			seen[sym] = true
			list = append(list, sym)
		}
	}
	sort.Strings(list)

	quotes, err := s.prices.LatestCloses(ctx, list)
	if quotes == nil {
		quotes = marketdata.Quotes{}
	}
	return quotes, err
}
