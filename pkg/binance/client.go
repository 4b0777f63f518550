// Package binance wraps REST access to the Binance public market data API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client wraps REST access to Binance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Testnet    bool
}

// NewClient builds a REST client; use testnet to switch base URLs.
func NewClient(testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		BaseURL:    base,
		Testnet:    testnet,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ticker is the 24h rolling window statistics for one trading pair.
type Ticker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// Price returns LastPrice as a float.
func (t Ticker) Price() float64 {
	f, _ := strconv.ParseFloat(t.LastPrice, 64)
	return f
}

// Change24h returns PriceChangePercent as a float.
func (t Ticker) Change24h() float64 {
	f, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
	return f
}

// Volume24h returns QuoteVolume as a float. The quote asset is USDT, so
// this approximates 24h volume in USD.
func (t Ticker) Volume24h() float64 {
	f, _ := strconv.ParseFloat(t.QuoteVolume, 64)
	return f
}

// Ticker24h fetches 24h ticker statistics for a bare asset symbol (e.g.
// "BTC"), quoted against USDT.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol)+"USDT")

	u := fmt.Sprintf("%s/api/v3/ticker/24hr?%s", c.BaseURL, params.Encode())
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
		return nil, fmt.Errorf("binance ticker status %d", res.StatusCode)
	}

	var t Ticker
	if err := json.NewDecoder(res.Body).Decode(&t); err != nil {
		return nil, err
	}
	if t.LastPrice == "" {
		return nil, fmt.Errorf("binance ticker: empty payload for %s", symbol)
	}
	return &t, nil
}
