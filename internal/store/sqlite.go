package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/atmx/position-engine/internal/model"
)

// Ledger rows are read back by trade date, then recording order (seq).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS buy_lots (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	asset_id    TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	unit_price  TEXT NOT NULL,
	fee         TEXT NOT NULL DEFAULT '0',
	trade_date  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_buy_lots_asset ON buy_lots(asset_id, trade_date);

CREATE TABLE IF NOT EXISTS sell_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	asset_id    TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	trade_date  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sell_events_asset ON sell_events(asset_id);

CREATE TABLE IF NOT EXISTS open_positions (
	asset_id          TEXT PRIMARY KEY,
	ticker            TEXT NOT NULL DEFAULT '',
	total_quantity    TEXT NOT NULL,
	total_fees        TEXT NOT NULL,
	average_unit_cost TEXT NOT NULL,
	cost_basis        TEXT NOT NULL,
	current_price     TEXT,
	market_value      TEXT,
	gain_amount       TEXT,
	gain_percent      TEXT,
	price_status      TEXT NOT NULL,
	valued_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS position_snapshots (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	run_id        TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	invested      TEXT NOT NULL,
	current_value TEXT NOT NULL,
	gain          TEXT NOT NULL
);
`

// SQLiteStore implements Store on a local SQLite file. Decimals are kept
// as TEXT so no precision is lost.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening db: %v", ErrLedgerUnreachable, err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting WAL mode: %v", ErrLedgerUnreachable, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertBuyLot(ctx context.Context, l *model.BuyLot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buy_lots (id, asset_id, quantity, unit_price, fee, trade_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.AssetID, l.Quantity.String(), l.UnitPrice.String(), l.Fee.String(), l.TradeDate.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert buy %s: %v", ErrPersistence, l.ID, err)
	}
	return nil
}

func (s *SQLiteStore) InsertSellEvent(ctx context.Context, e *model.SellEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sell_events (id, asset_id, quantity, trade_date)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.AssetID, e.Quantity.String(), e.TradeDate.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert sell %s: %v", ErrPersistence, e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Buys(ctx context.Context) ([]model.BuyLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, quantity, unit_price, fee, trade_date
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

func (s *SQLiteStore) Sells(ctx context.Context) ([]model.SellEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, quantity, trade_date
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

func (s *SQLiteStore) ReplaceOpenPositions(ctx context.Context, snap *model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM open_positions`); err != nil {
		return fmt.Errorf("%w: clear open positions: %v", ErrPersistence, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM position_snapshots`); err != nil {
		return fmt.Errorf("%w: clear snapshot: %v", ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO open_positions (asset_id, ticker, total_quantity, total_fees,
			average_unit_cost, cost_basis, current_price, market_value,
			gain_amount, gain_percent, price_status, valued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, p := range snap.Positions {
		if _, err := stmt.ExecContext(ctx,
			p.AssetID, p.Ticker,
			p.TotalQuantity.String(), p.TotalFees.String(),
			p.AverageUnitCost.String(), p.CostBasis.String(),
			nullText(p.CurrentPrice), nullText(p.MarketValue),
			nullText(p.GainAmount), nullText(p.GainPercent),
			string(p.PriceStatus), p.ValuedAt.UTC(),
		); err != nil {
			return fmt.Errorf("%w: insert position %s: %v", ErrPersistence, p.AssetID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO position_snapshots (id, run_id, created_at, invested, current_value, gain)
		VALUES (1, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.CreatedAt.UTC(),
		snap.Totals.Invested.String(), snap.Totals.CurrentValue.String(), snap.Totals.Gain.String(),
	); err != nil {
		return fmt.Errorf("%w: insert snapshot: %v", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	var invested, current, gain string

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, invested, current_value, gain
		FROM position_snapshots WHERE id = 1`).
		Scan(&snap.RunID, &snap.CreatedAt, &invested, &current, &gain)
	if errors.Is(err, sql.ErrNoRows) {
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, ticker, total_quantity, total_fees, average_unit_cost, cost_basis,
			current_price, market_value, gain_amount, gain_percent, price_status, valued_at
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
