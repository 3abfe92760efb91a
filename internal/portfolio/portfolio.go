// Package portfolio groups open lots into one summarized position per asset.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

// Aggregate returns one PositionSummary per asset present in lots.
//
// An asset whose lots add up to zero quantity is a closed position and is
// left out. Output is sorted by asset id, but callers should not rely on it.
func Aggregate(lots []model.OpenLot) []model.PositionSummary {
	type posAgg struct {
		quantity decimal.Decimal
		fees     decimal.Decimal
		cost     decimal.Decimal // Σ quantity × unit price
	}

	agg := make(map[string]*posAgg)
	for _, l := range lots {
		pa, ok := agg[l.AssetID]
		if !ok {
			pa = &posAgg{}
			agg[l.AssetID] = pa
		}
		pa.quantity = pa.quantity.Add(l.Quantity)
		pa.fees = pa.fees.Add(l.Fee)
		pa.cost = pa.cost.Add(l.Quantity.Mul(l.UnitPrice))
	}

	summaries := make([]model.PositionSummary, 0, len(agg))
	for asset, pa := range agg {
		if !pa.quantity.IsPositive() {
			continue
		}
		summaries = append(summaries, model.PositionSummary{
			AssetID:         asset,
			TotalQuantity:   pa.quantity,
			TotalFees:       pa.fees,
			AverageUnitCost: pa.cost.Div(pa.quantity),
			TotalCost:       pa.cost,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].AssetID < summaries[j].AssetID
	})
	return summaries
}

// AverageCost returns the weighted average unit cost of lots, or an
// invalid NullDecimal when their total quantity is zero.
func AverageCost(lots []model.OpenLot) decimal.NullDecimal {
	qty := decimal.Zero
	cost := decimal.Zero
	for _, l := range lots {
		qty = qty.Add(l.Quantity)
		cost = cost.Add(l.Quantity.Mul(l.UnitPrice))
	}
	if qty.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(cost.Div(qty))
}
