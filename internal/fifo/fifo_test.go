package fifo

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func buy(id, asset, date string, qty, price, fee float64) model.BuyLot {
	return model.BuyLot{
		ID:        id,
		AssetID:   asset,
		Quantity:  d(qty),
		UnitPrice: d(price),
		Fee:       d(fee),
		TradeDate: day(date),
	}
}

func sell(id, asset string, qty float64) model.SellEvent {
	return model.SellEvent{ID: id, AssetID: asset, Quantity: d(qty), TradeDate: day("2024-06-01")}
}

func sumQty(lots []model.OpenLot, asset string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		if l.AssetID == asset {
			total = total.Add(l.Quantity)
		}
	}
	return total
}

func TestMatch_FIFOOrder(t *testing.T) {
	// Inserted newest first to make sure matching sorts by date.
	buys := []model.BuyLot{
		buy("b2", "AAA", "2024-02-01", 5, 120, 1),
		buy("b1", "AAA", "2024-01-01", 10, 100, 1),
	}
	sells := []model.SellEvent{sell("s1", "AAA", 12)}

	res, err := Match(buys, sells)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lots) != 1 {
		t.Fatalf("expected 1 open lot, got %d", len(res.Lots))
	}

	lot := res.Lots[0]
	if lot.ID != "b2" {
		t.Errorf("expected Feb lot to remain, got %s", lot.ID)
	}
	if !lot.Quantity.Equal(d(3)) {
		t.Errorf("expected remaining quantity 3, got %s", lot.Quantity)
	}
	if !lot.UnitPrice.Equal(d(120)) || !lot.Fee.Equal(d(1)) {
		t.Errorf("lot attributes should be preserved, got price=%s fee=%s", lot.UnitPrice, lot.Fee)
	}
	if !lot.TradeDate.Equal(day("2024-02-01")) {
		t.Errorf("expected trade date 2024-02-01, got %s", lot.TradeDate)
	}
	if !lot.OriginalQuantity.Equal(d(5)) {
		t.Errorf("expected original quantity 5, got %s", lot.OriginalQuantity)
	}
	if len(res.Oversold) != 0 {
		t.Errorf("expected no oversell, got %v", res.Oversold)
	}
}

func TestMatch_SellOrderIrrelevant(t *testing.T) {
	buys := []model.BuyLot{
		buy("b1", "AAA", "2024-01-01", 10, 100, 0),
		buy("b2", "AAA", "2024-02-01", 5, 120, 0),
	}
	a, _ := Match(buys, []model.SellEvent{sell("s1", "AAA", 4), sell("s2", "AAA", 8)})
	b, _ := Match(buys, []model.SellEvent{sell("s2", "AAA", 8), sell("s1", "AAA", 4)})

	if len(a.Lots) != len(b.Lots) {
		t.Fatalf("expected same lot count, got %d and %d", len(a.Lots), len(b.Lots))
	}
	for i := range a.Lots {
		if a.Lots[i].ID != b.Lots[i].ID || !a.Lots[i].Quantity.Equal(b.Lots[i].Quantity) {
			t.Errorf("lot %d differs: %+v vs %+v", i, a.Lots[i], b.Lots[i])
		}
	}
}

func TestMatch_PartialConsumption(t *testing.T) {
	buys := []model.BuyLot{
		buy("b1", "AAA", "2024-01-01", 10, 100, 0),
		buy("b2", "AAA", "2024-02-01", 5, 120, 0),
	}
	res, err := Match(buys, []model.SellEvent{sell("s1", "AAA", 4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lots) != 2 {
		t.Fatalf("expected 2 open lots, got %d", len(res.Lots))
	}
	if !res.Lots[0].Quantity.Equal(d(6)) {
		t.Errorf("expected oldest lot reduced to 6, got %s", res.Lots[0].Quantity)
	}
	if !res.Lots[1].Quantity.Equal(d(5)) {
		t.Errorf("expected newer lot untouched at 5, got %s", res.Lots[1].Quantity)
	}
}

func TestMatch_ExactConsumptionClosesLot(t *testing.T) {
	buys := []model.BuyLot{buy("b1", "AAA", "2024-01-01", 10, 100, 0)}
	res, err := Match(buys, []model.SellEvent{sell("s1", "AAA", 10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lots) != 0 {
		t.Errorf("fully sold lot should disappear, got %v", res.Lots)
	}
	if len(res.Oversold) != 0 {
		t.Errorf("exact sale is not an oversell, got %v", res.Oversold)
	}
}

func TestMatch_Oversell(t *testing.T) {
	buys := []model.BuyLot{
		buy("b1", "AAA", "2024-01-01", 6, 100, 0),
		buy("b2", "AAA", "2024-02-01", 4, 100, 0),
	}
	res, err := Match(buys, []model.SellEvent{sell("s1", "AAA", 15)})
	if err != nil {
		t.Fatalf("oversell must not be an error, got %v", err)
	}
	if len(res.Lots) != 0 {
		t.Errorf("expected all lots consumed, got %v", res.Lots)
	}
	for _, l := range res.Lots {
		if l.Quantity.IsNegative() {
			t.Errorf("negative quantity in output: %s", l.Quantity)
		}
	}
	if len(res.Oversold) != 1 || !res.Oversold[0].Unmatched.Equal(d(5)) {
		t.Errorf("expected 5 unmatched for AAA, got %v", res.Oversold)
	}
}

func TestMatch_SellsWithoutBuysIgnored(t *testing.T) {
	buys := []model.BuyLot{buy("b1", "AAA", "2024-01-01", 10, 100, 0)}
	res, err := Match(buys, []model.SellEvent{sell("s1", "ZZZ", 3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sumQty(res.Lots, "AAA").Equal(d(10)) {
		t.Errorf("AAA should be untouched, got %s", sumQty(res.Lots, "AAA"))
	}
	if !sumQty(res.Lots, "ZZZ").IsZero() {
		t.Errorf("ZZZ should have no lots, got %s", sumQty(res.Lots, "ZZZ"))
	}
	if len(res.Oversold) != 1 || res.Oversold[0].AssetID != "ZZZ" {
		t.Errorf("expected ZZZ reported as oversold, got %v", res.Oversold)
	}
}

func TestMatch_BuysOnlyPassThrough(t *testing.T) {
	buys := []model.BuyLot{
		buy("b1", "AAA", "2024-01-01", 10, 100, 2),
		buy("b2", "BBB", "2024-01-05", 3, 50, 1),
	}
	res, err := Match(buys, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lots) != 2 {
		t.Fatalf("expected 2 lots, got %d", len(res.Lots))
	}
	for i, l := range res.Lots {
		if !l.Quantity.Equal(buys[i].Quantity) {
			t.Errorf("lot %s changed quantity: %s", l.ID, l.Quantity)
		}
	}
}

func TestMatch_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		buys  []model.BuyLot
		sells []model.SellEvent
	}{
		{"zero buy", []model.BuyLot{buy("b1", "AAA", "2024-01-01", 0, 100, 0)}, nil},
		{"negative buy", []model.BuyLot{buy("b1", "AAA", "2024-01-01", -1, 100, 0)}, nil},
		{"negative price", []model.BuyLot{buy("b1", "AAA", "2024-01-01", 1, -100, 0)}, nil},
		{"negative fee", []model.BuyLot{buy("b1", "AAA", "2024-01-01", 1, 100, -1)}, nil},
		{"zero sell", nil, []model.SellEvent{sell("s1", "AAA", 0)}},
		{"negative sell", nil, []model.SellEvent{sell("s1", "AAA", -2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Match(tt.buys, tt.sells)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestMatch_InputsNotMutated(t *testing.T) {
	buys := []model.BuyLot{
		buy("b2", "AAA", "2024-02-01", 5, 120, 1),
		buy("b1", "AAA", "2024-01-01", 10, 100, 1),
	}
	if _, err := Match(buys, []model.SellEvent{sell("s1", "AAA", 12)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buys[0].ID != "b2" || !buys[0].Quantity.Equal(d(5)) {
		t.Errorf("first input lot mutated: %+v", buys[0])
	}
	if buys[1].ID != "b1" || !buys[1].Quantity.Equal(d(10)) {
		t.Errorf("second input lot mutated: %+v", buys[1])
	}
}

func TestMatch_Conservation(t *testing.T) {
	buys := []model.BuyLot{
		buy("a1", "AAA", "2024-01-01", 10, 100, 0),
		buy("a2", "AAA", "2024-03-01", 7.5, 110, 0),
		buy("a3", "AAA", "2024-02-01", 2.25, 90, 0),
		buy("b1", "BBB", "2024-01-01", 4, 10, 0),
	}
	sellTotals := map[string]float64{"AAA": 13.1, "BBB": 9}
	sells := []model.SellEvent{
		sell("s1", "AAA", 6),
		sell("s2", "AAA", 7.1),
		sell("s3", "BBB", 9),
	}

	res, err := Match(buys, sells)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for asset, soldF := range sellTotals {
		bought := decimal.Zero
		for _, b := range buys {
			if b.AssetID == asset {
				bought = bought.Add(b.Quantity)
			}
		}
		consumed := decimal.Min(d(soldF), bought)
		got := sumQty(res.Lots, asset).Add(consumed)
		if !got.Equal(bought) {
			t.Errorf("%s: open + consumed = %s, expected %s", asset, got, bought)
		}
	}
}

func TestMatch_StableForSameDate(t *testing.T) {
	buys := []model.BuyLot{
		buy("first", "AAA", "2024-01-01", 2, 100, 0),
		buy("second", "AAA", "2024-01-01", 2, 101, 0),
	}
	res, err := Match(buys, []model.SellEvent{sell("s1", "AAA", 3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Lots) != 1 || res.Lots[0].ID != "second" {
		t.Fatalf("expected the later-recorded lot to remain, got %+v", res.Lots)
	}
	if !res.Lots[0].Quantity.Equal(d(1)) {
		t.Errorf("expected 1 remaining, got %s", res.Lots[0].Quantity)
	}
}
