// Package fifo implements first-in-first-out lot matching: it offsets the
// sold quantity of each asset against its oldest buy lots and returns what
// is still held.
//
// Matching is a pure transform. The input slices are never modified; every
// open lot in the result is a fresh value.
package fifo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

// ErrInvalidInput is returned when a buy lot or sell event carries a
// non-positive quantity, or a buy lot a negative price or fee. Any invalid
// record aborts the whole match.
var ErrInvalidInput = errors.New("fifo: invalid input")

// Oversell records sold quantity that found no buy lot to consume.
type Oversell struct {
	AssetID   string          `json:"asset_id"`
	Unmatched decimal.Decimal `json:"unmatched"`
}

// Result is the outcome of Match.
type Result struct {
	// Lots are the open lots, grouped by asset id (ascending) and ordered
	// oldest first within an asset.
	Lots []model.OpenLot

	// Oversold lists assets whose sells exceeded their buys. The excess is
	// not applied anywhere; it is reported so callers can warn about it.
	Oversold []Oversell
}

// Match runs FIFO matching for every asset found in buys and sells.
//
// Sell order and dates do not matter: the sells of an asset are summed and
// the total is consumed from the oldest lot onward. Sells for an asset with
// no buys are ignored.
func Match(buys []model.BuyLot, sells []model.SellEvent) (Result, error) {
	if err := validate(buys, sells); err != nil {
		return Result{}, err
	}

	byAsset := make(map[string][]model.BuyLot)
	for _, b := range buys {
		byAsset[b.AssetID] = append(byAsset[b.AssetID], b)
	}

	sold := make(map[string]decimal.Decimal)
	for _, s := range sells {
		sold[s.AssetID] = sold[s.AssetID].Add(s.Quantity)
	}

	var res Result
	for _, asset := range assetIDs(byAsset, sold) {
		open, excess := matchAsset(byAsset[asset], sold[asset])
		res.Lots = append(res.Lots, open...)
		if excess.IsPositive() {
			res.Oversold = append(res.Oversold, Oversell{AssetID: asset, Unmatched: excess})
		}
	}
	return res, nil
}

// matchAsset consumes outstanding from the lots of a single asset and
// returns the remaining open lots plus any quantity left unconsumed.
func matchAsset(lots []model.BuyLot, outstanding decimal.Decimal) ([]model.OpenLot, decimal.Decimal) {
	ordered := make([]model.BuyLot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TradeDate.Before(ordered[j].TradeDate)
	})

	var open []model.OpenLot
	for _, lot := range ordered {
		remaining := lot.Quantity
		if outstanding.IsPositive() {
			if remaining.LessThanOrEqual(outstanding) {
				// Fully consumed.
				outstanding = outstanding.Sub(remaining)
				remaining = decimal.Zero
			} else {
				remaining = remaining.Sub(outstanding)
				outstanding = decimal.Zero
			}
		}
		if !remaining.IsPositive() {
			continue
		}

		openLot := model.OpenLot{BuyLot: lot, OriginalQuantity: lot.Quantity}
		openLot.Quantity = remaining
		open = append(open, openLot)
	}
	return open, outstanding
}

func validate(buys []model.BuyLot, sells []model.SellEvent) error {
	for _, b := range buys {
		if !b.Quantity.IsPositive() {
			return fmt.Errorf("%w: buy %s of %s has quantity %s", ErrInvalidInput, b.ID, b.AssetID, b.Quantity)
		}
		if b.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: buy %s of %s has unit price %s", ErrInvalidInput, b.ID, b.AssetID, b.UnitPrice)
		}
		if b.Fee.IsNegative() {
			return fmt.Errorf("%w: buy %s of %s has fee %s", ErrInvalidInput, b.ID, b.AssetID, b.Fee)
		}
	}
	for _, s := range sells {
		if !s.Quantity.IsPositive() {
			return fmt.Errorf("%w: sell %s of %s has quantity %s", ErrInvalidInput, s.ID, s.AssetID, s.Quantity)
		}
	}
	return nil
}

// assetIDs returns the union of asset ids from both maps, sorted.
func assetIDs(buys map[string][]model.BuyLot, sells map[string]decimal.Decimal) []string {
	seen := make(map[string]bool, len(buys)+len(sells))
	var ids []string
	for id := range buys {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range sells {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
