package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"

	"portfolio-core/internal/market"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/db"
)

func newTestCalculator(t *testing.T, prices map[string]float64) (*Calculator, *trade.Executor, *db.Database, *market.Static) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	provider := market.NewStatic(prices)
	executor := trade.NewExecutor(database, provider, nil, nil)
	return NewCalculator(database, provider, nil), executor, database, provider
}

func seedUser(t *testing.T, d *db.Database, email string) int64 {
	t.Helper()
	id, err := d.CreateUser(context.Background(), db.User{Username: email, Email: email, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}

func seedCrypto(t *testing.T, d *db.Database, symbol, name string) {
	t.Helper()
	if err := d.UpsertCryptocurrency(context.Background(), symbol, name); err != nil {
		t.Fatalf("Failed to seed crypto: %v", err)
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func TestCalculatePortfolio(t *testing.T) {
	calc, executor, database, _ := newTestCalculator(t, map[string]float64{"BTC": 50000, "ETH": 3000})
	ctx := context.Background()
	user := seedUser(t, database, "pf@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")
	seedCrypto(t, database, "ETH", "Ethereum")

	if _, err := executor.Execute(ctx, trade.Request{UserID: user, Symbol: "BTC", Type: trade.Buy, Amount: 1}); err != nil {
		t.Fatalf("buy BTC failed: %v", err)
	}
	if _, err := executor.Execute(ctx, trade.Request{UserID: user, Symbol: "ETH", Type: trade.Buy, Amount: 2}); err != nil {
		t.Fatalf("buy ETH failed: %v", err)
	}

	sum, err := calc.Calculate(ctx, user)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if !approx(sum.TotalValue, 56000) {
		t.Errorf("expected total 56000, got %v", sum.TotalValue)
	}
	if len(sum.Holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(sum.Holdings))
	}
	// Sorted by value descending: BTC first.
	if sum.Holdings[0].Symbol != "BTC" {
		t.Errorf("expected BTC first, got %s", sum.Holdings[0].Symbol)
	}
	if !approx(sum.Holdings[0].Allocation, 100*50000.0/56000.0) {
		t.Errorf("unexpected BTC allocation: %v", sum.Holdings[0].Allocation)
	}
	if !approx(sum.Holdings[1].Allocation, 100*6000.0/56000.0) {
		t.Errorf("unexpected ETH allocation: %v", sum.Holdings[1].Allocation)
	}

	t.Run("calculation is idempotent", func(t *testing.T) {
		again, err := calc.Calculate(ctx, user)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if !approx(again.TotalValue, sum.TotalValue) {
			t.Errorf("total changed between reads: %v vs %v", again.TotalValue, sum.TotalValue)
		}
	})

	t.Run("sync does not change balances", func(t *testing.T) {
		first, err := calc.Sync(ctx, user)
		if err != nil {
			t.Fatalf("Sync failed: %v", err)
		}
		second, err := calc.Sync(ctx, user)
		if err != nil {
			t.Fatalf("Sync failed: %v", err)
		}
		if !approx(first.TotalValue, second.TotalValue) {
			t.Errorf("repeated sync changed totals: %v vs %v", first.TotalValue, second.TotalValue)
		}
	})
}

func TestCalculateEmptyPortfolio(t *testing.T) {
	calc, _, database, _ := newTestCalculator(t, map[string]float64{})
	ctx := context.Background()
	user := seedUser(t, database, "empty@example.com")

	sum, err := calc.Calculate(ctx, user)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if sum.TotalValue != 0 {
		t.Errorf("expected zero total, got %v", sum.TotalValue)
	}
	if len(sum.Holdings) != 0 {
		t.Errorf("expected no holdings, got %d", len(sum.Holdings))
	}
}

func TestPerformance(t *testing.T) {
	calc, executor, database, provider := newTestCalculator(t, map[string]float64{"BTC": 50000})
	ctx := context.Background()
	user := seedUser(t, database, "perf@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	if _, err := executor.Execute(ctx, trade.Request{UserID: user, Symbol: "BTC", Type: trade.Buy, Amount: 1}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	// Price moves up after the buy.
	provider.SetPrice("BTC", 55000)

	perf, err := calc.Performance(ctx, user, "24h")
	if err != nil {
		t.Fatalf("Performance failed: %v", err)
	}
	if perf.TradeCount != 1 {
		t.Fatalf("expected 1 trade, got %d", perf.TradeCount)
	}
	if !approx(perf.TotalProfitLoss, 5000) {
		t.Errorf("expected P/L 5000, got %v", perf.TotalProfitLoss)
	}
	if !approx(perf.Percent, 10) {
		t.Errorf("expected 10%%, got %v", perf.Percent)
	}
	if perf.Best == nil || perf.Best.Symbol != "BTC" {
		t.Errorf("unexpected best performer: %+v", perf.Best)
	}

	t.Run("sell profits when price falls", func(t *testing.T) {
		if _, err := executor.Execute(ctx, trade.Request{UserID: user, Symbol: "BTC", Type: trade.Sell, Amount: 1}); err != nil {
			t.Fatalf("sell failed: %v", err)
		}
		provider.SetPrice("BTC", 52000)

		perf, err := calc.Performance(ctx, user, "24h")
		if err != nil {
			t.Fatalf("Performance failed: %v", err)
		}
		// Buy @50000 now worth 52000 (+2000); sell @55000 now 52000 (+3000).
		if !approx(perf.TotalProfitLoss, 5000) {
			t.Errorf("expected P/L 5000, got %v", perf.TotalProfitLoss)
		}
	})

	t.Run("invalid timeframe rejected", func(t *testing.T) {
		_, err := calc.Performance(ctx, user, "2h")
		if !errors.Is(err, ErrInvalidTimeframe) {
			t.Errorf("expected ErrInvalidTimeframe, got %v", err)
		}
	})
}
