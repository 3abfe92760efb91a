// Package store defines the persistence interfaces for the position engine.
// Implementations include PostgreSQL (source of truth), SQLite (single-user
// local runs), and in-memory (for testing).
//
// Every implementation replaces the open-position snapshot inside one
// transaction: a failed replace leaves the previous snapshot in place.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

var (
	// ErrLedgerUnreachable wraps any failure to read the transaction ledger.
	ErrLedgerUnreachable = errors.New("store: ledger unreachable")

	// ErrPersistence wraps any failure to write to the store.
	ErrPersistence = errors.New("store: persistence failure")

	// ErrNoSnapshot is returned when no snapshot has been persisted yet.
	ErrNoSnapshot = errors.New("store: no snapshot persisted")
)

// LedgerReader reads the raw transaction ledger.
type LedgerReader interface {
	// Buys returns every buy lot in the ledger.
	Buys(ctx context.Context) ([]model.BuyLot, error)

	// Sells returns every sell event in the ledger.
	Sells(ctx context.Context) ([]model.SellEvent, error)
}

// PositionStore persists the computed open positions.
type PositionStore interface {
	// ReplaceOpenPositions overwrites the previous snapshot with snap.
	ReplaceOpenPositions(ctx context.Context, snap *model.Snapshot) error

	// LatestSnapshot returns the last persisted snapshot.
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)
}

// Store is the full persistence interface.
type Store interface {
	LedgerReader
	PositionStore

	// --- Immutable ledger ---

	// InsertBuyLot appends a buy record.
	InsertBuyLot(ctx context.Context, lot *model.BuyLot) error

	// InsertSellEvent appends a sell record.
	InsertSellEvent(ctx context.Context, ev *model.SellEvent) error

	// Close releases the underlying connection.
	Close() error
}

// --- NUMERIC <-> decimal helpers ---

// nullText renders a NullDecimal for a nullable NUMERIC/TEXT column.
func nullText(n decimal.NullDecimal) *string {
	if !n.Valid {
		return nil
	}
	s := n.Decimal.String()
	return &s
}

// parseNull reads a nullable column back into a NullDecimal.
func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// decField pairs a scanned text value with its destination.
type decField struct {
	dst *decimal.Decimal
	src string
}

// parseDecimals parses every field, stopping at the first malformed value.
func parseDecimals(fields ...decField) error {
	for _, f := range fields {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}
