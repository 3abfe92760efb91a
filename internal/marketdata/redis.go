package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/metrics"
)

// CachedProvider wraps a primary Provider with a Redis read-through cache.
// Only valid prices are cached; symbols without data are asked again on
// the next call. Redis failures fall back to the primary.
type CachedProvider struct {
	primary Provider
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedProvider creates a cached wrapper around a primary provider.
func NewCachedProvider(primary Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (p *CachedProvider) LatestCloses(ctx context.Context, symbols []string) (Quotes, error) {
	symbols = uniqueSymbols(symbols)
	quotes := make(Quotes, len(symbols))
	if len(symbols) == 0 {
		return quotes, nil
	}

	// Try cache with a single MGET round trip.
	misses := symbols
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = priceKey(s)
	}
	if vals, err := p.rdb.MGet(ctx, keys...).Result(); err == nil {
		misses = nil
		for i, v := range vals {
			if price, ok := cachedPrice(v); ok {
				quotes[symbols[i]] = decimal.NewNullDecimal(price)
				metrics.PriceCacheHits.Inc()
				continue
			}
			misses = append(misses, symbols[i])
		}
	} else {
		slog.Warn("price cache read failed", "err", err)
	}

	if len(misses) == 0 {
		return quotes, nil
	}

	// Cache miss: ask the primary.
	fresh, err := p.primary.LatestCloses(ctx, misses)
	for s, q := range fresh {
		quotes[s] = q
	}
	p.cachePrices(ctx, fresh)
	return quotes, err
}

// --- Cache helpers ---

func (p *CachedProvider) cachePrices(ctx context.Context, quotes Quotes) {
	pipe := p.rdb.Pipeline()
	n := 0
	for s, q := range quotes {
		if !q.Valid {
			continue
		}
		pipe.Set(ctx, priceKey(s), q.Decimal.String(), p.ttl)
		n++
	}
	if n == 0 {
		return
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("price cache write failed", "err", err)
	}
}

func cachedPrice(v interface{}) (decimal.Decimal, bool) {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func priceKey(symbol string) string { return fmt.Sprintf("price:%s", symbol) }
