// Package market provides quotes for the trade, alert and portfolio
// services through a read-through cache over the upstream price APIs.
package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"portfolio-core/internal/monitor"
	"portfolio-core/pkg/binance"
	"portfolio-core/pkg/cache"
	"portfolio-core/pkg/coingecko"
)

// ErrQuoteUnavailable means no fresh-enough cached or live quote exists.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// Quote is a point-in-time price with 24h change and market stats for a
// symbol. MarketCap and Volume24h are zero when the upstream does not
// report them.
type Quote struct {
	Price     float64
	Change24h float64
	MarketCap float64
	Volume24h float64
	FetchedAt time.Time
}

// Provider serves current quotes for asset symbols.
type Provider interface {
	GetCurrentPrice(ctx context.Context, symbol string) (Quote, error)
	GetCurrentPrices(ctx context.Context, symbols []string) (map[string]Quote, error)
}

type binanceAPI interface {
	Ticker24h(ctx context.Context, symbol string) (*binance.Ticker, error)
}

type geckoAPI interface {
	SimplePrices(ctx context.Context, symbols []string) (map[string]coingecko.Price, error)
}

// Service is the production Provider: Binance first, CoinGecko as
// fallback, with a sharded TTL cache in front. When both upstreams fail it
// serves the last-known-good quote while it is within StaleBound.
type Service struct {
	Binance binanceAPI
	Gecko   geckoAPI
	Metrics *monitor.SystemMetrics

	TTL        time.Duration
	StaleBound time.Duration
	Timeout    time.Duration

	quotes *cache.ShardedQuoteCache
}

// NewService builds a provider over the two upstream clients.
func NewService(bn binanceAPI, gk geckoAPI, ttl, staleBound, timeout time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if staleBound < ttl {
		staleBound = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		Binance:    bn,
		Gecko:      gk,
		TTL:        ttl,
		StaleBound: staleBound,
		Timeout:    timeout,
		quotes:     cache.NewShardedQuoteCache(),
	}
}

// GetCurrentPrice returns a quote for one symbol or ErrQuoteUnavailable.
func (s *Service) GetCurrentPrice(ctx context.Context, symbol string) (Quote, error) {
	quotes, err := s.GetCurrentPrices(ctx, []string{symbol})
	if err != nil {
		return Quote{}, err
	}
	q, ok := quotes[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, strings.ToUpper(symbol))
	}
	return q, nil
}

// GetCurrentPrices returns quotes keyed by upper-cased symbol. Symbols with
// no fresh-enough cached or live quote are absent from the result; callers
// treat a missing key as ErrQuoteUnavailable for that symbol.
func (s *Service) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	out := make(map[string]Quote, len(symbols))
	var misses []string

	for _, raw := range symbols {
		sym := strings.ToUpper(raw)
		if q, age, ok := s.quotes.GetWithAge(sym); ok && age < s.TTL {
			out[sym] = Quote(q)
			s.Metrics.IncrQuoteCacheHits()
			continue
		}
		misses = append(misses, sym)
	}

	if len(misses) == 0 {
		return out, nil
	}

	timer := monitor.NewTimer(s.quoteHistogram())
	fetched := s.fetchBinance(ctx, misses)

	var leftover []string
	for _, sym := range misses {
		if _, ok := fetched[sym]; !ok {
			leftover = append(leftover, sym)
		}
	}
	if len(leftover) > 0 && s.Gecko != nil {
		for sym, q := range s.fetchGecko(ctx, leftover) {
			fetched[sym] = q
		}
	}
	timer.Stop()

	for sym, q := range fetched {
		s.quotes.Set(sym, cache.Quote(q))
		out[sym] = q
	}
	// Fall back to a stale cached quote when every upstream failed for a
	// symbol and the cached value is still within the staleness bound.
	for _, sym := range misses {
		if _, ok := out[sym]; ok {
			continue
		}
		if q, age, ok := s.quotes.GetWithAge(sym); ok && age < s.StaleBound {
			out[sym] = Quote(q)
			log.Printf("market: serving stale quote for %s (age %v)", sym, age.Round(time.Second))
		}
	}

	return out, nil
}

func (s *Service) quoteHistogram() *monitor.LatencyHistogram {
	if s.Metrics == nil {
		return nil
	}
	return s.Metrics.QuoteLatency
}

// CacheStats exposes quote cache statistics for the status endpoint.
func (s *Service) CacheStats() cache.CacheStats {
	return s.quotes.Stats()
}

// fetchBinance fans out per-symbol ticker calls, retrying each with
// exponential backoff bounded by the request context.
func (s *Service) fetchBinance(ctx context.Context, symbols []string) map[string]Quote {
	quotes := make(map[string]Quote, len(symbols))
	if s.Binance == nil {
		return quotes
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			var t *binance.Ticker
			op := func() error {
				var err error
				t, err = s.Binance.Ticker24h(gCtx, sym)
				return err
			}
			if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), gCtx)); err != nil {
				log.Printf("market: binance quote for %s failed: %v", sym, err)
				return nil // per-symbol failure must not cancel the group
			}
			if t.Price() <= 0 {
				return nil
			}
			mu.Lock()
			quotes[sym] = Quote{Price: t.Price(), Change24h: t.Change24h(), Volume24h: t.Volume24h(), FetchedAt: time.Now()}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return quotes
}

// fetchGecko fetches the leftover symbols in a single batched call.
func (s *Service) fetchGecko(ctx context.Context, symbols []string) map[string]Quote {
	quotes := make(map[string]Quote, len(symbols))

	var prices map[string]coingecko.Price
	op := func() error {
		var err error
		prices, err = s.Gecko.SimplePrices(ctx, symbols)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)); err != nil {
		log.Printf("market: coingecko fallback failed: %v", err)
		return quotes
	}

	for sym, p := range prices {
		if p.USD <= 0 {
			continue
		}
		quotes[sym] = Quote{Price: p.USD, Change24h: p.Change24h, MarketCap: p.MarketCap, Volume24h: p.Volume24h, FetchedAt: time.Now()}
	}
	return quotes
}
