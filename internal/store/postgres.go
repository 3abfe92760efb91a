package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/position-engine/internal/model"
)

// postgresSchema creates the ledger and snapshot tables. Monetary values
// are NUMERIC for exact decimal precision. Ledger rows carry seq, their
// recording order, which breaks ties between entries sharing a trade date.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS buy_lots (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL,
	asset_id    TEXT NOT NULL,
	quantity    NUMERIC NOT NULL,
	unit_price  NUMERIC NOT NULL,
	fee         NUMERIC NOT NULL DEFAULT 0,
	trade_date  TIMESTAMPTZ NOT NULL
);
ALTER TABLE buy_lots ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS idx_buy_lots_asset ON buy_lots(asset_id, trade_date);

CREATE TABLE IF NOT EXISTS sell_events (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL,
	asset_id    TEXT NOT NULL,
	quantity    NUMERIC NOT NULL,
	trade_date  TIMESTAMPTZ NOT NULL
);
ALTER TABLE sell_events ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS idx_sell_events_asset ON sell_events(asset_id);

CREATE TABLE IF NOT EXISTS open_positions (
	asset_id          TEXT PRIMARY KEY,
	ticker            TEXT NOT NULL DEFAULT '',
	total_quantity    NUMERIC NOT NULL,
	total_fees        NUMERIC NOT NULL,
	average_unit_cost NUMERIC NOT NULL,
	cost_basis        NUMERIC NOT NULL,
	current_price     NUMERIC,
	market_value      NUMERIC,
	gain_amount       NUMERIC,
	gain_percent      NUMERIC,
	price_status      TEXT NOT NULL,
	valued_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS position_snapshots (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	run_id        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	invested      NUMERIC NOT NULL,
	current_value NUMERIC NOT NULL,
	gain          NUMERIC NOT NULL
);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store. The pool is
// owned by the store and closed by Close.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to dsn, verifies the connection and applies the
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrLedgerUnreachable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrLedgerUnreachable, err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("schema migration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertBuyLot(ctx context.Context, l *model.BuyLot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO buy_lots (id, asset_id, quantity, unit_price, fee, trade_date)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		l.ID, l.AssetID, l.Quantity.String(), l.UnitPrice.String(), l.Fee.String(), l.TradeDate,
	)
	if err != nil {
		return fmt.Errorf("%w: insert buy %s: %v", ErrPersistence, l.ID, err)
	}
	return nil
}

func (s *PostgresStore) InsertSellEvent(ctx context.Context, e *model.SellEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sell_events (id, asset_id, quantity, trade_date)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		e.ID, e.AssetID, e.Quantity.String(), e.TradeDate,
	)
	if err != nil {
		return fmt.Errorf("%w: insert sell %s: %v", ErrPersistence, e.ID, err)
	}
	return nil
}

func (s *PostgresStore) Buys(ctx context.Context) ([]model.BuyLot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, quantity::TEXT, unit_price::TEXT, fee::TEXT, trade_date
		 FROM buy_lots ORDER BY trade_date, seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: query buys: %v", ErrLedgerUnreachable, err)
	}
	defer rows.Close()

	lots, err := scanBuyLots(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan buys: %v", ErrLedgerUnreachable, err)
	}
	return lots, nil
}

func (s *PostgresStore) Sells(ctx context.Context) ([]model.SellEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, quantity::TEXT, trade_date
		 FROM sell_events ORDER BY trade_date, seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: query sells: %v", ErrLedgerUnreachable, err)
	}
	defer rows.Close()

	events, err := scanSellEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan sells: %v", ErrLedgerUnreachable, err)
	}
	return events, nil
}

// ReplaceOpenPositions deletes the previous snapshot and inserts snap in a
// single transaction.
func (s *PostgresStore) ReplaceOpenPositions(ctx context.Context, snap *model.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM open_positions`)
	batch.Queue(`DELETE FROM position_snapshots`)
	for _, p := range snap.Positions {
		batch.Queue(
			`INSERT INTO open_positions (asset_id, ticker, total_quantity, total_fees,
			        average_unit_cost, cost_basis, current_price, market_value,
			        gain_amount, gain_percent, price_status, valued_at)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
			         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12)`,
			p.AssetID, p.Ticker,
			p.TotalQuantity.String(), p.TotalFees.String(),
			p.AverageUnitCost.String(), p.CostBasis.String(),
			nullText(p.CurrentPrice), nullText(p.MarketValue),
			nullText(p.GainAmount), nullText(p.GainPercent),
			string(p.PriceStatus), p.ValuedAt,
		)
	}
	batch.Queue(
		`INSERT INTO position_snapshots (id, run_id, created_at, invested, current_value, gain)
		 VALUES (1, $1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)`,
		snap.RunID, snap.CreatedAt,
		snap.Totals.Invested.String(), snap.Totals.CurrentValue.String(), snap.Totals.Gain.String(),
	)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: replace open positions: %v", ErrPersistence, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	var invested, current, gain string

	err := s.pool.QueryRow(ctx,
		`SELECT run_id, created_at, invested::TEXT, current_value::TEXT, gain::TEXT
		 FROM position_snapshots WHERE id = 1`).
		Scan(&snap.RunID, &snap.CreatedAt, &invested, &current, &gain)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	if err := parseDecimals(
		decField{&snap.Totals.Invested, invested},
		decField{&snap.Totals.CurrentValue, current},
		decField{&snap.Totals.Gain, gain},
	); err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, ticker, total_quantity::TEXT, total_fees::TEXT,
		        average_unit_cost::TEXT, cost_basis::TEXT,
		        current_price::TEXT, market_value::TEXT, gain_amount::TEXT, gain_percent::TEXT,
		        price_status, valued_at
		 FROM open_positions ORDER BY asset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap.Positions, err = scanPositions(rows)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- Row scanning shared with SQLiteStore ---

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBuyLots(rows rowScanner) ([]model.BuyLot, error) {
	var lots []model.BuyLot
	for rows.Next() {
		var l model.BuyLot
		var qtyS, priceS, feeS string
		var tradeDate time.Time

		if err := rows.Scan(&l.ID, &l.AssetID, &qtyS, &priceS, &feeS, &tradeDate); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			decField{&l.Quantity, qtyS},
			decField{&l.UnitPrice, priceS},
			decField{&l.Fee, feeS},
		); err != nil {
			return nil, fmt.Errorf("buy %s: %w", l.ID, err)
		}
		l.TradeDate = tradeDate.UTC()
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func scanSellEvents(rows rowScanner) ([]model.SellEvent, error) {
	var events []model.SellEvent
	for rows.Next() {
		var e model.SellEvent
		var qtyS string
		var tradeDate time.Time

		if err := rows.Scan(&e.ID, &e.AssetID, &qtyS, &tradeDate); err != nil {
			return nil, err
		}
		if err := parseDecimals(decField{&e.Quantity, qtyS}); err != nil {
			return nil, fmt.Errorf("sell %s: %w", e.ID, err)
		}
		e.TradeDate = tradeDate.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanPositions(rows rowScanner) ([]model.ValuedPosition, error) {
	var positions []model.ValuedPosition
	for rows.Next() {
		var p model.ValuedPosition
		var qtyS, feesS, avgS, costS string
		var priceS, mvS, gainS, pctS *string
		var status string
		var valuedAt time.Time

		if err := rows.Scan(&p.AssetID, &p.Ticker, &qtyS, &feesS, &avgS, &costS,
			&priceS, &mvS, &gainS, &pctS, &status, &valuedAt); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			decField{&p.TotalQuantity, qtyS},
			decField{&p.TotalFees, feesS},
			decField{&p.AverageUnitCost, avgS},
			decField{&p.CostBasis, costS},
		); err != nil {
			return nil, fmt.Errorf("position %s: %w", p.AssetID, err)
		}

		var err error
		if p.CurrentPrice, err = parseNull(priceS); err != nil {
			return nil, err
		}
		if p.MarketValue, err = parseNull(mvS); err != nil {
			return nil, err
		}
		if p.GainAmount, err = parseNull(gainS); err != nil {
			return nil, err
		}
		if p.GainPercent, err = parseNull(pctS); err != nil {
			return nil, err
		}
		p.PriceStatus = model.PriceStatus(status)
		p.ValuedAt = valuedAt.UTC()
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
