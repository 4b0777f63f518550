package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Static is a fixed-price Provider for local development and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStatic builds a provider serving the given symbol -> price map.
func NewStatic(prices map[string]float64) *Static {
	s := &Static{quotes: make(map[string]Quote, len(prices))}
	for sym, p := range prices {
		s.quotes[strings.ToUpper(sym)] = Quote{Price: p, FetchedAt: time.Now()}
	}
	return s
}

// SetPrice updates (or adds) the quote for a symbol.
func (s *Static) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[strings.ToUpper(symbol)] = Quote{Price: price, FetchedAt: time.Now()}
}

// Remove makes a symbol unavailable.
func (s *Static) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, strings.ToUpper(symbol))
}

func (s *Static) GetCurrentPrice(ctx context.Context, symbol string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, strings.ToUpper(symbol))
	}
	return q, nil
}

func (s *Static) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Quote, len(symbols))
	for _, raw := range symbols {
		sym := strings.ToUpper(raw)
		if q, ok := s.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}
