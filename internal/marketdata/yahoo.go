package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/atmx/position-engine/internal/metrics"
)

const (
	DefaultYahooURL = "https://query1.finance.yahoo.com"

	// Yahoo's spark endpoint accepts at most 20 symbols per request.
	defaultChunkSize = 20
	maxParallel      = 4

	// Outgoing request budget; Yahoo answers 429 to bursts.
	requestInterval = 250 * time.Millisecond

	// A five day window survives weekends and market holidays.
	closeRange = "5d"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
)

// sparkResponse is the subset of the v7 spark payload we read.
//
//	{"spark":{"result":[{"symbol":"SAN.MC","response":[{"indicators":{"quote":[{"close":[3.9,null,4.1]}]}}]}],"error":null}}
type sparkResponse struct {
	Spark struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Indicators struct {
					Quote []struct {
						Close []decimal.NullDecimal `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"response"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"spark"`
}

// YahooProvider fetches daily closes from Yahoo Finance, batching symbols
// into as few requests as possible.
type YahooProvider struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	chunkSize int
}

// NewYahooProvider creates a provider against baseURL (DefaultYahooURL when
// empty) with the given per-request timeout.
func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &YahooProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(requestInterval), maxParallel),
		chunkSize: defaultChunkSize,
	}
}

// LatestCloses returns the last non-null daily close of each symbol over
// the past five trading days. Chunks are fetched concurrently; quotes from
// chunks that succeeded are returned even when another chunk failed.
func (p *YahooProvider) LatestCloses(ctx context.Context, symbols []string) (Quotes, error) {
	symbols = uniqueSymbols(symbols)
	quotes := make(Quotes, len(symbols))
	if len(symbols) == 0 {
		return quotes, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallel)

	for start := 0; start < len(symbols); start += p.chunkSize {
		end := min(start+p.chunkSize, len(symbols))
		chunk := symbols[start:end]

		g.Go(func() error {
			begin := time.Now()
			got, err := p.fetchChunk(ctx, chunk)
			metrics.PriceFetchLatency.Observe(time.Since(begin).Seconds())
			if err != nil {
				metrics.PriceFetchErrors.Inc()
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, s := range chunk {
				quotes[s] = got[s] // zero NullDecimal when Yahoo omitted the symbol
			}
			return nil
		})
	}

	err := g.Wait()
	return quotes, err
}

func (p *YahooProvider) fetchChunk(ctx context.Context, symbols []string) (Quotes, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("range", closeRange)
	q.Set("interval", "1d")
	addr := p.baseURL + "/v7/finance/spark?" + q.Encode()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrProviderUnavailable, req.URL.Path, resp.Status)
	}

	var payload sparkResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode spark response: %v", ErrProviderUnavailable, err)
	}
	if e := payload.Spark.Error; e != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, e.Code, e.Description)
	}

	quotes := make(Quotes, len(symbols))
	for _, r := range payload.Spark.Result {
		var closes []decimal.NullDecimal
		for _, series := range r.Response {
			for _, quote := range series.Indicators.Quote {
				closes = append(closes, quote.Close...)
			}
		}
		quotes[r.Symbol] = lastValid(closes)
		if !quotes[r.Symbol].Valid {
			slog.Debug("no close in window", "symbol", r.Symbol, "range", closeRange)
		}
	}
	return quotes, nil
}

// lastValid returns the most recent non-null close.
func lastValid(closes []decimal.NullDecimal) decimal.NullDecimal {
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i].Valid {
			return closes[i]
		}
	}
	return decimal.NullDecimal{}
}
