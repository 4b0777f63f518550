package alert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"portfolio-core/internal/market"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/db"
)

func newTestService(t *testing.T, prices map[string]float64) (*Service, *db.Database, *market.Static) {
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
	return NewService(database, provider, executor, nil, nil), database, provider
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

func TestCreateAlertValidation(t *testing.T) {
	svc, database, _ := newTestService(t, map[string]float64{"BTC": 50000})
	ctx := context.Background()
	user := seedUser(t, database, "alerts@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	t.Run("valid alert", func(t *testing.T) {
		a, err := svc.Create(ctx, CreateRequest{
			UserID: user, Symbol: "btc", TargetPrice: 60000, Condition: "Above",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if !a.IsActive || a.IsTriggered {
			t.Errorf("new alert should be active and untriggered: %+v", a)
		}
		if a.Condition != "above" {
			t.Errorf("condition not normalized: %q", a.Condition)
		}
		if a.TradeType != "buy" {
			t.Errorf("expected default trade type buy, got %q", a.TradeType)
		}
	})

	t.Run("duplicate suppressed", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{
			UserID: user, Symbol: "BTC", TargetPrice: 60000, Condition: "above",
		})
		if !errors.Is(err, ErrDuplicateAlert) {
			t.Errorf("expected ErrDuplicateAlert, got %v", err)
		}
	})

	t.Run("different target is not a duplicate", func(t *testing.T) {
		if _, err := svc.Create(ctx, CreateRequest{
			UserID: user, Symbol: "BTC", TargetPrice: 65000, Condition: "above",
		}); err != nil {
			t.Errorf("Create failed: %v", err)
		}
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{
			UserID: 9999, Symbol: "BTC", TargetPrice: 60000, Condition: "above",
		})
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("unknown symbol rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{
			UserID: user, Symbol: "NOPE", TargetPrice: 1, Condition: "above",
		})
		if !errors.Is(err, ErrInvalidCryptocurrency) {
			t.Errorf("expected ErrInvalidCryptocurrency, got %v", err)
		}
	})

	t.Run("bad condition rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{
			UserID: user, Symbol: "BTC", TargetPrice: 1, Condition: "sideways",
		})
		if !errors.Is(err, ErrInvalidCondition) {
			t.Errorf("expected ErrInvalidCondition, got %v", err)
		}
	})
}

func TestDeactivateAlert(t *testing.T) {
	svc, database, _ := newTestService(t, map[string]float64{"BTC": 50000})
	ctx := context.Background()
	user := seedUser(t, database, "deact@example.com")
	other := seedUser(t, database, "other@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	a, err := svc.Create(ctx, CreateRequest{
		UserID: user, Symbol: "BTC", TargetPrice: 60000, Condition: "above",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("other user cannot see the alert", func(t *testing.T) {
		err := svc.Deactivate(ctx, other, a.ID, true)
		if !errors.Is(err, ErrAlertNotFound) {
			t.Errorf("expected ErrAlertNotFound, got %v", err)
		}
	})

	t.Run("stale expectation conflicts", func(t *testing.T) {
		err := svc.Deactivate(ctx, user, a.ID, false)
		if !errors.Is(err, ErrConcurrentModification) {
			t.Errorf("expected ErrConcurrentModification, got %v", err)
		}
	})

	t.Run("deactivation succeeds once", func(t *testing.T) {
		if err := svc.Deactivate(ctx, user, a.ID, true); err != nil {
			t.Fatalf("Deactivate failed: %v", err)
		}
		err := svc.Deactivate(ctx, user, a.ID, true)
		if !errors.Is(err, ErrAlertAlreadyInactive) {
			t.Errorf("expected ErrAlertAlreadyInactive, got %v", err)
		}
	})

	t.Run("delete missing alert is a no-op", func(t *testing.T) {
		deleted, err := svc.Delete(ctx, user, 424242)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if deleted {
			t.Error("expected deleted=false for missing alert")
		}
	})
}

func TestEvaluateFiresConfiguredTrade(t *testing.T) {
	svc, database, provider := newTestService(t, map[string]float64{"BTC": 50000})
	ctx := context.Background()
	user := seedUser(t, database, "fire@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	a, err := svc.Create(ctx, CreateRequest{
		UserID: user, Symbol: "BTC", TargetPrice: 55000, Condition: "above",
		TradeType: "buy", TradeAmount: 0.1,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Below target: nothing fires.
	svc.EvaluateActiveAlerts(ctx)
	got, err := database.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if got.IsTriggered {
		t.Fatal("alert fired below target")
	}

	// Cross the threshold.
	provider.SetPrice("BTC", 56000)
	svc.EvaluateActiveAlerts(ctx)

	got, err = database.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if !got.IsTriggered {
		t.Fatal("alert did not fire above target")
	}

	n, err := database.CountTradesByAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountTradesByAlert failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 alert trade, got %d", n)
	}

	t.Run("later passes do not refire", func(t *testing.T) {
		svc.EvaluateActiveAlerts(ctx)
		n, err := database.CountTradesByAlert(ctx, a.ID)
		if err != nil {
			t.Fatalf("CountTradesByAlert failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 alert trade after re-pass, got %d", n)
		}
	})
}

func TestEvaluateConcurrentPassesFireOnce(t *testing.T) {
	svc, database, provider := newTestService(t, map[string]float64{"ETH": 3000})
	ctx := context.Background()
	user := seedUser(t, database, "race@example.com")
	seedCrypto(t, database, "ETH", "Ethereum")

	a, err := svc.Create(ctx, CreateRequest{
		UserID: user, Symbol: "ETH", TargetPrice: 2500, Condition: "above",
		TradeType: "buy", TradeAmount: 1,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	provider.SetPrice("ETH", 3000)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.EvaluateActiveAlerts(ctx)
		}()
	}
	wg.Wait()

	n, err := database.CountTradesByAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountTradesByAlert failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly 1 trade from concurrent passes, got %d", n)
	}
}

func TestFundedSellAlertFiresOnce(t *testing.T) {
	svc, database, provider := newTestService(t, map[string]float64{"BTC": 40000})
	ctx := context.Background()
	user := seedUser(t, database, "takeprofit@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	if _, err := svc.Executor.Execute(ctx, trade.Request{
		UserID: user, Symbol: "BTC", Type: trade.Buy, Amount: 1,
	}); err != nil {
		t.Fatalf("funding buy failed: %v", err)
	}

	a, err := svc.Create(ctx, CreateRequest{
		UserID: user, Symbol: "BTC", TargetPrice: 45000, Condition: "above",
		TradeType: "sell", TradeAmount: 0.5,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	provider.SetPrice("BTC", 46000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.EvaluateActiveAlerts(ctx)
		}()
	}
	wg.Wait()

	n, err := database.CountTradesByAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountTradesByAlert failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one sell, got %d", n)
	}
	got, err := database.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if !got.IsTriggered {
		t.Error("alert should stay triggered after the sell")
	}
}

func TestFailedAlertTradeReleasesClaim(t *testing.T) {
	svc, database, provider := newTestService(t, map[string]float64{"BTC": 50000})
	ctx := context.Background()
	user := seedUser(t, database, "release@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	// Configured sell with no holdings: the trade must fail.
	a, err := svc.Create(ctx, CreateRequest{
		UserID: user, Symbol: "BTC", TargetPrice: 45000, Condition: "above",
		TradeType: "sell", TradeAmount: 1,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	provider.SetPrice("BTC", 50000)

	svc.EvaluateActiveAlerts(ctx)

	got, err := database.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if got.IsTriggered {
		t.Error("claim not released after failed trade")
	}
	n, err := database.CountTradesByAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountTradesByAlert failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no trades, got %d", n)
	}
}

func TestNotifyOnlyAlertFires(t *testing.T) {
	svc, database, provider := newTestService(t, map[string]float64{"BTC": 50000})
	ctx := context.Background()
	user := seedUser(t, database, "notify@example.com")
	seedCrypto(t, database, "BTC", "Bitcoin")

	// TradeAmount zero: fire and notify without trading.
	a, err := svc.Create(ctx, CreateRequest{
		UserID: user, Symbol: "BTC", TargetPrice: 45000, Condition: "above",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	provider.SetPrice("BTC", 50000)

	svc.EvaluateActiveAlerts(ctx)

	got, err := database.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if !got.IsTriggered {
		t.Error("notify-only alert did not fire")
	}
	n, err := database.CountTradesByAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountTradesByAlert failed: %v", err)
	}
	if n != 0 {
		t.Errorf("notify-only alert should not trade, got %d trades", n)
	}
}
