// Package model defines the core domain types shared across the position engine.
// Quantities and money are shopspring/decimal values, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuyLot is an immutable record of a purchase as stored in the ledger.
// Schema: {asset, quantity, unit price, fee, trade date}
type BuyLot struct {
	ID        string          `json:"id" db:"id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`     // > 0
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"` // >= 0
	Fee       decimal.Decimal `json:"fee" db:"fee"`               // >= 0
	TradeDate time.Time       `json:"trade_date" db:"trade_date"`
}

// SellEvent is a read-only record of a sale. Only its quantity takes part
// in FIFO matching; the date is kept for auditing.
type SellEvent struct {
	ID        string          `json:"id" db:"id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"` // > 0
	TradeDate time.Time       `json:"trade_date" db:"trade_date"`
}

// OpenLot is the unconsumed portion of a BuyLot. Quantity holds the
// remaining amount; every other attribute is the buy's own.
type OpenLot struct {
	BuyLot
	OriginalQuantity decimal.Decimal `json:"original_quantity"`
}

// PositionSummary aggregates the open lots of one asset.
type PositionSummary struct {
	AssetID         string          `json:"asset_id"`
	TotalQuantity   decimal.Decimal `json:"total_quantity"`
	TotalFees       decimal.Decimal `json:"total_fees"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"` // quantity-weighted

	// TotalCost is the exact Σ quantity × unit price. AverageUnitCost is
	// rounded by division, so cost basis is taken from here when set.
	TotalCost decimal.Decimal `json:"-"`
}

// PriceStatus tells why a position does or does not carry a price.
type PriceStatus string

const (
	PriceOK            PriceStatus = "ok"
	PriceMissingTicker PriceStatus = "missing_ticker" // no entry in the ticker mapping
	PriceNoData        PriceStatus = "no_data"        // provider answered without a close
	PriceUnavailable   PriceStatus = "unavailable"    // provider could not be reached
)

// ValuedPosition is a PositionSummary marked to market. Fields that need a
// current price are null when the price is absent.
type ValuedPosition struct {
	PositionSummary
	Ticker       string              `json:"ticker,omitempty"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	PriceStatus  PriceStatus         `json:"price_status"`
	CostBasis    decimal.Decimal     `json:"cost_basis"`
	MarketValue  decimal.NullDecimal `json:"market_value"`
	GainAmount   decimal.NullDecimal `json:"gain_amount"`
	GainPercent  decimal.NullDecimal `json:"gain_percent"`
	ValuedAt     time.Time           `json:"valued_at"`
}

// Totals are the portfolio-wide figures shown in the report.
type Totals struct {
	Invested     decimal.Decimal `json:"invested"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Gain         decimal.Decimal `json:"gain"`
}

// Snapshot is the result of one reconciliation run. A new snapshot replaces
// the previously persisted one entirely.
type Snapshot struct {
	RunID     string           `json:"run_id"`
	CreatedAt time.Time        `json:"created_at"`
	Positions []ValuedPosition `json:"positions"`
	Totals    Totals           `json:"totals"`
}
