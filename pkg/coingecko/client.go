// Package coingecko wraps the CoinGecko simple-price API, used as the
// fallback quote source when Binance is unavailable.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps REST access to the CoinGecko v3 API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    "https://api.coingecko.com/api/v3",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Price is a USD quote with 24h change and market stats.
type Price struct {
	USD       float64 `json:"usd"`
	Change24h float64 `json:"usd_24h_change"`
	MarketCap float64 `json:"usd_market_cap"`
	Volume24h float64 `json:"usd_24h_vol"`
}

// symbolIDs maps common ticker symbols to CoinGecko coin ids.
var symbolIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
}

// SymbolToID resolves a ticker symbol to a CoinGecko coin id, falling back
// to the lowercased symbol for coins not in the map.
func SymbolToID(symbol string) string {
	if id, ok := symbolIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// SimplePrices fetches USD prices with 24h change for the given ticker
// symbols in one call. The result is keyed by the input symbols.
func (c *Client) SimplePrices(ctx context.Context, symbols []string) (map[string]Price, error) {
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ids = append(ids, SymbolToID(s))
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")
	params.Set("include_market_cap", "true")
	params.Set("include_24hr_vol", "true")

	u := fmt.Sprintf("%s/simple/price?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko simple/price status %d", res.StatusCode)
	}

	var byID map[string]Price
	if err := json.NewDecoder(res.Body).Decode(&byID); err != nil {
		return nil, err
	}

	out := make(map[string]Price, len(symbols))
	for _, s := range symbols {
		if p, ok := byID[SymbolToID(s)]; ok {
			out[strings.ToUpper(s)] = p
		}
	}
	return out, nil
}
