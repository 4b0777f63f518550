// Package portfolio values user holdings at current market prices and
// derives allocation and trade performance summaries.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"portfolio-core/internal/events"
	"portfolio-core/internal/market"
	"portfolio-core/pkg/db"
)

// ErrInvalidTimeframe is returned for timeframes outside the supported set.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// timeframes maps the API timeframe names to sqlite datetime modifiers.
var timeframes = map[string]string{
	"24h": "-24 hours",
	"7d":  "-7 days",
	"30d": "-30 days",
	"1y":  "-1 year",
}

// Holding is one asset position valued at the current price.
type Holding struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
	Price      float64 `json:"price"`
	Value      float64 `json:"value"`
	Allocation float64 `json:"allocation"` // percent of total value
}

// Summary is the valued portfolio, holdings sorted by value descending.
type Summary struct {
	UserID     int64     `json:"user_id"`
	TotalValue float64   `json:"total_value"`
	Holdings   []Holding `json:"holdings"`
	AsOf       time.Time `json:"as_of"`
}

// TradePerformance is per-trade profit or loss against the current price.
type TradePerformance struct {
	TradeID    int64     `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	TradeType  string    `json:"trade_type"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	Price      float64   `json:"current_price"`
	ProfitLoss float64   `json:"profit_loss"`
	Percent    float64   `json:"profit_loss_percent"`
	CreatedAt  time.Time `json:"created_at"`
}

// SymbolPerformance aggregates trade P/L per symbol.
type SymbolPerformance struct {
	Symbol     string  `json:"symbol"`
	ProfitLoss float64 `json:"profit_loss"`
	Trades     int     `json:"trades"`
}

// Performance summarises trades within a timeframe.
type Performance struct {
	Timeframe       string             `json:"timeframe"`
	TotalProfitLoss float64            `json:"total_profit_loss"`
	TotalInvested   float64            `json:"total_invested"`
	Percent         float64            `json:"profit_loss_percent"`
	TradeCount      int                `json:"trade_count"`
	Best            *SymbolPerformance `json:"best_performer,omitempty"`
	Worst           *SymbolPerformance `json:"worst_performer,omitempty"`
	Trades          []TradePerformance `json:"trades"`
}

// Calculator values holdings through the market provider. Reads never
// mutate state, so concurrent calculations for the same user are safe.
type Calculator struct {
	DB       *db.Database
	Provider market.Provider
	Bus      *events.Bus
}

func NewCalculator(database *db.Database, provider market.Provider, bus *events.Bus) *Calculator {
	return &Calculator{DB: database, Provider: provider, Bus: bus}
}

// Calculate values every positive holding at the current price. Holdings
// whose quote is unavailable are valued at zero rather than failing the
// whole portfolio.
func (c *Calculator) Calculate(ctx context.Context, userID int64) (*Summary, error) {
	holdings, err := c.DB.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}

	out := &Summary{UserID: userID, Holdings: []Holding{}, AsOf: time.Now()}
	if len(holdings) == 0 {
		return out, nil
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	quotes, err := c.Provider.GetCurrentPrices(ctx, symbols)
	if err != nil {
		return nil, err
	}

	for _, h := range holdings {
		q, ok := quotes[h.Symbol]
		if !ok {
			log.Printf("portfolio: no quote for %s, valuing at zero", h.Symbol)
		}
		v := h.Balance * q.Price
		out.Holdings = append(out.Holdings, Holding{
			Symbol:  h.Symbol,
			Name:    h.Name,
			Balance: h.Balance,
			Price:   q.Price,
			Value:   v,
		})
		out.TotalValue += v
	}

	if out.TotalValue > 0 {
		for i := range out.Holdings {
			out.Holdings[i].Allocation = out.Holdings[i].Value / out.TotalValue * 100
		}
	}

	sort.Slice(out.Holdings, func(i, j int) bool {
		return out.Holdings[i].Value > out.Holdings[j].Value
	})
	return out, nil
}

// Sync recomputes the portfolio and publishes the fresh summary. Wallet
// balances are already settled by the trade transaction, so a sync never
// re-applies trade deltas; running it any number of times after the same
// trade yields the same summary.
func (c *Calculator) Sync(ctx context.Context, userID int64) (*Summary, error) {
	sum, err := c.Calculate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.Bus != nil {
		c.Bus.Publish(events.EventPortfolioUpdate, sum)
	}
	return sum, nil
}

// Performance reports per-trade and aggregate profit/loss for trades in
// the timeframe, marked to the current price.
func (c *Calculator) Performance(ctx context.Context, userID int64, timeframe string) (*Performance, error) {
	modifier, ok := timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}

	trades, err := c.DB.ListTradesSince(ctx, userID, modifier)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	perf := &Performance{Timeframe: timeframe, Trades: []TradePerformance{}}
	if len(trades) == 0 {
		return perf, nil
	}

	seen := make(map[string]struct{})
	var symbols []string
	for _, t := range trades {
		if _, ok := seen[t.Symbol]; !ok {
			seen[t.Symbol] = struct{}{}
			symbols = append(symbols, t.Symbol)
		}
	}
	quotes, err := c.Provider.GetCurrentPrices(ctx, symbols)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*SymbolPerformance)
	for _, t := range trades {
		q, ok := quotes[t.Symbol]
		if !ok {
			continue
		}

		// Buys gain when the price rises above the entry, sells gain when
		// it falls below.
		var pl float64
		if t.Type == "buy" {
			pl = (q.Price - t.Price) * t.Amount
		} else {
			pl = (t.Price - q.Price) * t.Amount
		}

		tp := TradePerformance{
			TradeID:    t.ID,
			Symbol:     t.Symbol,
			TradeType:  t.Type,
			Amount:     t.Amount,
			EntryPrice: t.Price,
			Price:      q.Price,
			ProfitLoss: pl,
			CreatedAt:  t.CreatedAt,
		}
		if t.TotalValue > 0 {
			tp.Percent = pl / t.TotalValue * 100
		}
		perf.Trades = append(perf.Trades, tp)
		perf.TotalProfitLoss += pl
		perf.TotalInvested += t.TotalValue
		perf.TradeCount++

		sp, ok := bySymbol[t.Symbol]
		if !ok {
			sp = &SymbolPerformance{Symbol: t.Symbol}
			bySymbol[t.Symbol] = sp
		}
		sp.ProfitLoss += pl
		sp.Trades++
	}

	if perf.TotalInvested > 0 {
		perf.Percent = perf.TotalProfitLoss / perf.TotalInvested * 100
	}
	for _, sp := range bySymbol {
		if perf.Best == nil || sp.ProfitLoss > perf.Best.ProfitLoss {
			perf.Best = sp
		}
		if perf.Worst == nil || sp.ProfitLoss < perf.Worst.ProfitLoss {
			perf.Worst = sp
		}
	}
	return perf, nil
}

// Timeframes lists the supported performance windows.
func Timeframes() []string {
	return []string{"24h", "7d", "30d", "1y"}
}
