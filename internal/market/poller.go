package market

import (
	"context"
	"log"
	"time"

	"portfolio-core/internal/events"
	"portfolio-core/pkg/db"
)

// PriceTick is the bus payload for a refreshed quote.
type PriceTick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
}

// Poller periodically refreshes quotes for the configured symbols,
// publishes price ticks on the bus and updates the informational snapshot
// columns on the cryptocurrencies table.
type Poller struct {
	Provider Provider
	Bus      *events.Bus
	DB       *db.Database
	Symbols  []string
	Interval time.Duration
}

func (p *Poller) Start(ctx context.Context) {
	if p.Provider == nil || len(p.Symbols) == 0 {
		log.Println("poller: provider or symbols not set, not starting")
		return
	}
	if p.Interval <= 0 {
		p.Interval = time.Minute
	}

	go func() {
		t := time.NewTicker(p.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.refresh(ctx)
			}
		}
	}()
}

func (p *Poller) refresh(ctx context.Context) {
	quotes, err := p.Provider.GetCurrentPrices(ctx, p.Symbols)
	if err != nil {
		log.Printf("poller: refresh failed: %v", err)
		return
	}

	for sym, q := range quotes {
		if p.Bus != nil {
			p.Bus.Publish(events.EventPriceTick, PriceTick{Symbol: sym, Price: q.Price, Change24h: q.Change24h})
		}
		if p.DB != nil {
			if err := p.DB.UpdateCryptoSnapshot(ctx, sym, q.Price, q.Change24h, q.MarketCap, q.Volume24h); err != nil {
				log.Printf("poller: snapshot update for %s failed: %v", sym, err)
			}
		}
	}
}
