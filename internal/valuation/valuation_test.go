package valuation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func price(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(f))
}

func summary(asset string, qty, avg, fees float64) model.PositionSummary {
	return model.PositionSummary{
		AssetID:         asset,
		TotalQuantity:   d(qty),
		TotalFees:       d(fees),
		AverageUnitCost: d(avg),
	}
}

func TestValue_WithFees(t *testing.T) {
	e := NewEngine(true)
	vp := e.Value(summary("AAA", 3, 120, 1), price(150))

	if !vp.CostBasis.Equal(d(360)) {
		t.Errorf("expected cost basis 360, got %s", vp.CostBasis)
	}
	if !vp.MarketValue.Valid || !vp.MarketValue.Decimal.Equal(d(450)) {
		t.Errorf("expected market value 450, got %v", vp.MarketValue)
	}
	if !vp.GainAmount.Valid || !vp.GainAmount.Decimal.Equal(d(89)) {
		t.Errorf("expected gain 89, got %v", vp.GainAmount)
	}
	if !vp.GainPercent.Valid || !vp.GainPercent.Decimal.Round(2).Equal(d(24.72)) {
		t.Errorf("expected gain percent ≈ 24.72, got %v", vp.GainPercent)
	}
	if vp.PriceStatus != model.PriceOK {
		t.Errorf("expected status ok, got %s", vp.PriceStatus)
	}
}

func TestValue_WithoutFees(t *testing.T) {
	e := NewEngine(false)
	vp := e.Value(summary("AAA", 3, 120, 1), price(150))

	if !vp.GainAmount.Decimal.Equal(d(90)) {
		t.Errorf("fees should be ignored, expected gain 90, got %v", vp.GainAmount)
	}
	if !vp.GainPercent.Decimal.Equal(d(25)) {
		t.Errorf("expected gain percent 25, got %v", vp.GainPercent)
	}
}

func TestValue_AbsentPrice(t *testing.T) {
	e := NewEngine(true)
	vp := e.Value(summary("AAA", 10, 50, 0), decimal.NullDecimal{})

	if !vp.CostBasis.Equal(d(500)) {
		t.Errorf("cost basis should still be computed, got %s", vp.CostBasis)
	}
	if vp.MarketValue.Valid || vp.GainAmount.Valid || vp.GainPercent.Valid {
		t.Errorf("expected price-dependent fields absent, got mv=%v gain=%v pct=%v",
			vp.MarketValue, vp.GainAmount, vp.GainPercent)
	}
	if vp.PriceStatus != model.PriceNoData {
		t.Errorf("expected status no_data, got %s", vp.PriceStatus)
	}
}

func TestValue_ZeroCostBasis(t *testing.T) {
	e := NewEngine(true)
	vp := e.Value(summary("GIFT", 5, 0, 0), price(10))

	if !vp.GainPercent.Valid || !vp.GainPercent.Decimal.IsZero() {
		t.Errorf("zero cost basis should report 0%%, got %v", vp.GainPercent)
	}
	if !vp.GainAmount.Decimal.Equal(d(50)) {
		t.Errorf("expected gain 50, got %v", vp.GainAmount)
	}

	e.ZeroCost = ZeroCostAsAbsent
	vp = e.Value(summary("GIFT", 5, 0, 0), price(10))
	if vp.GainPercent.Valid {
		t.Errorf("absent policy should leave percent null, got %v", vp.GainPercent)
	}
}

func TestValue_Loss(t *testing.T) {
	e := NewEngine(false)
	vp := e.Value(summary("AAA", 4, 25, 0), price(20))
	if !vp.GainAmount.Decimal.Equal(d(-20)) {
		t.Errorf("expected gain -20, got %v", vp.GainAmount)
	}
	if !vp.GainPercent.Decimal.Equal(d(-20)) {
		t.Errorf("expected gain percent -20, got %v", vp.GainPercent)
	}
}

func TestValue_Timestamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	e := &Engine{Now: func() time.Time { return at }}
	vp := e.Value(summary("AAA", 1, 1, 0), price(1))
	if !vp.ValuedAt.Equal(at) {
		t.Errorf("expected valued_at %s, got %s", at, vp.ValuedAt)
	}
}

func TestParseZeroCostPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ZeroCostPolicy
		wantErr bool
	}{
		{"", ZeroCostAsZero, false},
		{"zero", ZeroCostAsZero, false},
		{" Absent ", ZeroCostAsAbsent, false},
		{"null", ZeroCostAsAbsent, false},
		{"nan", ZeroCostAsZero, true},
	}
	for _, tt := range tests {
		got, err := ParseZeroCostPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestTotals(t *testing.T) {
	e := NewEngine(true)
	positions := []model.ValuedPosition{
		e.Value(summary("AAA", 3, 120, 1), price(150)),
		e.Value(summary("BBB", 10, 50, 0), decimal.NullDecimal{}),
	}

	totals := Totals(positions)
	if !totals.Invested.Equal(d(860)) {
		t.Errorf("expected invested 860, got %s", totals.Invested)
	}
	if !totals.CurrentValue.Equal(d(450)) {
		t.Errorf("expected current value 450, got %s", totals.CurrentValue)
	}
	if !totals.Gain.Equal(d(89)) {
		t.Errorf("expected gain 89, got %s", totals.Gain)
	}
}

func TestExclude(t *testing.T) {
	positions := []model.ValuedPosition{
		{PositionSummary: model.PositionSummary{AssetID: "BATS"}},
		{PositionSummary: model.PositionSummary{AssetID: "Diageo "}},
		{PositionSummary: model.PositionSummary{AssetID: "Santander"}},
	}

	out := Exclude(positions, []string{" BATS", "Diageo"})
	if len(out) != 1 || out[0].AssetID != "Santander" {
		t.Errorf("expected only Santander, got %v", out)
	}
	if len(positions) != 3 {
		t.Error("input slice should not be modified")
	}

	if got := Exclude(positions, nil); len(got) != 3 {
		t.Errorf("empty exclusion list should keep everything, got %d", len(got))
	}
}

func TestValue_CostBasisFromTotalCost(t *testing.T) {
	s := model.PositionSummary{
		AssetID:         "AAA",
		TotalQuantity:   d(3),
		AverageUnitCost: decimal.RequireFromString("100.3333333333333333"),
		TotalCost:       d(301),
	}
	vp := NewEngine(true).Value(s, price(110))

	if !vp.CostBasis.Equal(d(301)) {
		t.Errorf("expected cost basis 301, got %s", vp.CostBasis)
	}
	if !vp.GainAmount.Decimal.Equal(d(29)) {
		t.Errorf("expected gain 29, got %v", vp.GainAmount)
	}
	if got := Totals([]model.ValuedPosition{vp}); !got.Invested.Equal(d(301)) {
		t.Errorf("expected invested 301, got %s", got.Invested)
	}

	// Without a total the basis is rebuilt from the average.
	s.TotalCost = decimal.Zero
	vp = NewEngine(true).Value(s, price(110))
	if !vp.CostBasis.Equal(decimal.RequireFromString("300.9999999999999999")) {
		t.Errorf("expected cost basis from average, got %s", vp.CostBasis)
	}
}
