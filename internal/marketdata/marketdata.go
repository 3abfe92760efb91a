// Package marketdata looks up the latest close price of market symbols.
//
// Providers distinguish two failure modes. A symbol present in the returned
// Quotes with an invalid price means the provider answered but had no close
// for it. A symbol missing from Quotes, together with an error wrapping
// ErrProviderUnavailable, means the provider could not be asked at all.
package marketdata

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrProviderUnavailable is returned when the price source cannot be
// reached or answers with an unusable response.
var ErrProviderUnavailable = errors.New("marketdata: provider unavailable")

// Quotes maps a symbol to its latest close price.
type Quotes map[string]decimal.NullDecimal

// Provider fetches latest close prices for a batch of symbols.
type Provider interface {
	LatestCloses(ctx context.Context, symbols []string) (Quotes, error)
}

// StaticProvider serves prices from a fixed map. Symbols not in Prices are
// answered with no data. If Err is set every call fails with it.
type StaticProvider struct {
	Prices map[string]decimal.Decimal
	Err    error
}

func (p *StaticProvider) LatestCloses(_ context.Context, symbols []string) (Quotes, error) {
	if p.Err != nil {
		return Quotes{}, p.Err
	}
	quotes := make(Quotes, len(symbols))
	for _, s := range symbols {
		if price, ok := p.Prices[s]; ok {
			quotes[s] = decimal.NewNullDecimal(price)
		} else {
			quotes[s] = decimal.NullDecimal{}
		}
	}
	return quotes, nil
}

// uniqueSymbols drops blanks and duplicates, keeping first-seen order.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
