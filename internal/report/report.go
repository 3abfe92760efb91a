// Package report renders a reconciliation snapshot as a markdown summary:
// one table row per open position followed by the portfolio totals.
package report

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

// absent is printed for values that need a price the run did not get.
const absent = "n/a"

// Render writes the markdown report of snap to w.
func Render(w io.Writer, snap *model.Snapshot) {
	fmt.Fprintf(w, "# Portfolio summary\n\n")
	fmt.Fprintf(w, "Run `%s` valued on %s.\n\n", snap.RunID, snap.CreatedAt.Format("2006-01-02 15:04 MST"))

	if len(snap.Positions) == 0 {
		fmt.Fprintln(w, "No open positions.")
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "| Asset | Ticker | Quantity | Avg. cost | Price | Cost basis | Value | Gain | Gain % | Status |")
		fmt.Fprintln(w, "|:---|:---|---:|---:|---:|---:|---:|---:|---:|:---|")
		for _, p := range snap.Positions {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				p.AssetID,
				orDash(p.Ticker),
				p.TotalQuantity.String(),
				Money(p.AverageUnitCost),
				nullMoney(p.CurrentPrice),
				Money(p.CostBasis),
				nullMoney(p.MarketValue),
				nullMoney(p.GainAmount),
				nullPercent(p.GainPercent),
				p.PriceStatus,
			)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Totals")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| | Amount |")
	fmt.Fprintln(w, "|:---|---:|")
	fmt.Fprintf(w, "| Total invested | %s |\n", Money(snap.Totals.Invested))
	fmt.Fprintf(w, "| Current value | %s |\n", Money(snap.Totals.CurrentValue))
	fmt.Fprintf(w, "| Total gain | %s |\n", Money(snap.Totals.Gain))
}

// Terminal styles a markdown document for display in a terminal.
func Terminal(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("report: terminal renderer: %w", err)
	}
	return r.Render(markdown)
}

// Money formats v with two decimals and thousands separators, without
// going through float64.
func Money(v decimal.Decimal) string {
	s := v.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	n, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return v.StringFixed(2)
	}

	out := humanize.BigComma(n) + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func nullMoney(v decimal.NullDecimal) string {
	if !v.Valid {
		return absent
	}
	return Money(v.Decimal)
}

func nullPercent(v decimal.NullDecimal) string {
	if !v.Valid {
		return absent
	}
	return v.Decimal.StringFixed(2) + "%"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
