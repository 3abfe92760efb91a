// Package valuation marks position summaries to market and computes
// profit and loss.
package valuation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ZeroCostPolicy decides the gain percentage of a position whose cost
// basis is zero, where a ratio cannot be computed.
type ZeroCostPolicy int

const (
	// ZeroCostAsZero reports the percentage as 0. This hides the difference
	// between "acquired for free" and "nothing to compare against".
	ZeroCostAsZero ZeroCostPolicy = iota

	// ZeroCostAsAbsent leaves the percentage null.
	ZeroCostAsAbsent
)

// ParseZeroCostPolicy maps "zero" or "absent" to a policy.
func ParseZeroCostPolicy(s string) (ZeroCostPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return ZeroCostAsZero, nil
	case "absent", "null":
		return ZeroCostAsAbsent, nil
	}
	return ZeroCostAsZero, fmt.Errorf("valuation: unknown zero-cost policy %q", s)
}

func (p ZeroCostPolicy) String() string {
	if p == ZeroCostAsAbsent {
		return "absent"
	}
	return "zero"
}

// Engine values positions. The zero value includes no fees in the gain
// and uses ZeroCostAsZero.
type Engine struct {
	// IncludeFees subtracts the position's total fees from its gain.
	IncludeFees bool

	ZeroCost ZeroCostPolicy

	// Now stamps ValuedAt; defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an engine with the given fee handling and the default
// zero-cost policy.
func NewEngine(includeFees bool) *Engine {
	return &Engine{IncludeFees: includeFees, ZeroCost: ZeroCostAsZero}
}

// Value computes cost basis, market value and gain of summary at price.
// An absent price is a normal outcome: cost basis is still computed and
// every price-dependent field is left null.
func (e *Engine) Value(summary model.PositionSummary, price decimal.NullDecimal) model.ValuedPosition {
	vp := model.ValuedPosition{
		PositionSummary: summary,
		CurrentPrice:    price,
		PriceStatus:     model.PriceOK,
		CostBasis:       costBasis(summary),
		ValuedAt:        e.now(),
	}
	if !price.Valid {
		vp.PriceStatus = model.PriceNoData
		return vp
	}

	marketValue := summary.TotalQuantity.Mul(price.Decimal)
	gain := marketValue.Sub(vp.CostBasis)
	if e.IncludeFees {
		gain = gain.Sub(summary.TotalFees)
	}

	vp.MarketValue = decimal.NewNullDecimal(marketValue)
	vp.GainAmount = decimal.NewNullDecimal(gain)
	vp.GainPercent = e.gainPercent(gain, vp.CostBasis)
	return vp
}

// costBasis prefers the exact total cost of the lots. Summaries without
// one fall back to quantity × average cost.
func costBasis(summary model.PositionSummary) decimal.Decimal {
	if summary.TotalCost.IsZero() {
		return summary.TotalQuantity.Mul(summary.AverageUnitCost)
	}
	return summary.TotalCost
}

func (e *Engine) gainPercent(gain, costBasis decimal.Decimal) decimal.NullDecimal {
	if !costBasis.IsZero() {
		return decimal.NewNullDecimal(gain.Div(costBasis).Mul(hundred))
	}
	if e.ZeroCost == ZeroCostAsAbsent {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.Zero)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Totals sums the portfolio figures shown in reports. Null market values
// and gains count as zero.
func Totals(positions []model.ValuedPosition) model.Totals {
	var t model.Totals
	for _, p := range positions {
		t.Invested = t.Invested.Add(p.CostBasis)
		if p.MarketValue.Valid {
			t.CurrentValue = t.CurrentValue.Add(p.MarketValue.Decimal)
		}
		if p.GainAmount.Valid {
			t.Gain = t.Gain.Add(p.GainAmount.Decimal)
		}
	}
	return t
}

// Exclude drops positions whose asset id is in names. Names are compared
// after trimming surrounding whitespace. The input slice is not modified.
func Exclude(positions []model.ValuedPosition, names []string) []model.ValuedPosition {
	if len(names) == 0 {
		out := make([]model.ValuedPosition, len(positions))
		copy(out, positions)
		return out
	}

	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[strings.TrimSpace(n)] = true
	}

	out := make([]model.ValuedPosition, 0, len(positions))
	for _, p := range positions {
		if drop[strings.TrimSpace(p.AssetID)] {
			continue
		}
		out = append(out, p)
	}
	return out
}
