package marketdata

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/metrics"
)

// LocalCachedProvider keeps valid prices in process memory for ttl. It
// serves a single instance when no Redis is configured.
type LocalCachedProvider struct {
	primary Provider
	prices  *cache.Cache
}

// NewLocalCachedProvider wraps primary with an in-memory cache.
func NewLocalCachedProvider(primary Provider, ttl time.Duration) *LocalCachedProvider {
	return &LocalCachedProvider{
		primary: primary,
		prices:  cache.New(ttl, 2*ttl),
	}
}

func (p *LocalCachedProvider) LatestCloses(ctx context.Context, symbols []string) (Quotes, error) {
	symbols = uniqueSymbols(symbols)
	quotes := make(Quotes, len(symbols))

	var misses []string
	for _, s := range symbols {
		if v, ok := p.prices.Get(s); ok {
			quotes[s] = decimal.NewNullDecimal(v.(decimal.Decimal))
			metrics.PriceCacheHits.Inc()
			continue
		}
		misses = append(misses, s)
	}
	if len(misses) == 0 {
		return quotes, nil
	}

	fresh, err := p.primary.LatestCloses(ctx, misses)
	for s, q := range fresh {
		quotes[s] = q
		if q.Valid {
			p.prices.Set(s, q.Decimal, cache.DefaultExpiration)
		}
	}
	return quotes, err
}
