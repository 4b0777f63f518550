package db

import (
	"context"
	"database/sql"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func seedUser(t *testing.T, d *Database, email string) int64 {
	t.Helper()
	id, err := d.CreateUser(context.Background(), User{
		Username:     email,
		Email:        email,
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}

func seedCrypto(t *testing.T, d *Database, symbol, name string) int64 {
	t.Helper()
	ctx := context.Background()
	if err := d.UpsertCryptocurrency(ctx, symbol, name); err != nil {
		t.Fatalf("Failed to seed crypto: %v", err)
	}
	c, err := d.GetCryptoBySymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("Failed to resolve crypto: %v", err)
	}
	return c.ID
}

func TestUserQueriesRequireUserID(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	t.Run("ListHoldings requires userID", func(t *testing.T) {
		_, err := database.ListHoldings(ctx, 0)
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("ListTradesByUser requires userID", func(t *testing.T) {
		_, err := database.ListTradesByUser(ctx, 0, 100, 0)
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("ListTradesSince requires userID", func(t *testing.T) {
		_, err := database.ListTradesSince(ctx, 0, "-24 hours")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("ListAlertsByUser requires userID", func(t *testing.T) {
		_, err := database.ListAlertsByUser(ctx, 0)
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("DeleteAlert requires userID", func(t *testing.T) {
		_, err := database.DeleteAlert(ctx, 1, 0)
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})
}

func TestTradeDataIsolation(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	userA := seedUser(t, database, "a@example.com")
	userB := seedUser(t, database, "b@example.com")
	btc := seedCrypto(t, database, "BTC", "Bitcoin")
	eth := seedCrypto(t, database, "ETH", "Ethereum")

	insert := func(userID, cryptoID int64, tradeType string) {
		t.Helper()
		err := database.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := InsertTradeTx(tx, Trade{
				UserID: userID, CryptoID: cryptoID, Type: tradeType,
				Amount: 1, Price: 100, TotalValue: 100, Status: "completed",
			})
			return err
		})
		if err != nil {
			t.Fatalf("Failed to insert trade: %v", err)
		}
	}
	insert(userA, btc, "buy")
	insert(userB, eth, "buy")

	t.Run("User A sees only their trades", func(t *testing.T) {
		trades, err := database.ListTradesByUser(ctx, userA, 100, 0)
		if err != nil {
			t.Fatalf("Failed to list trades: %v", err)
		}
		if len(trades) != 1 {
			t.Fatalf("expected 1 trade, got %d", len(trades))
		}
		if trades[0].Symbol != "BTC" {
			t.Errorf("expected BTC, got %s", trades[0].Symbol)
		}
	})

	t.Run("User B sees only their trades", func(t *testing.T) {
		trades, err := database.ListTradesByUser(ctx, userB, 100, 0)
		if err != nil {
			t.Fatalf("Failed to list trades: %v", err)
		}
		if len(trades) != 1 {
			t.Fatalf("expected 1 trade, got %d", len(trades))
		}
		if trades[0].Symbol != "ETH" {
			t.Errorf("expected ETH, got %s", trades[0].Symbol)
		}
	})

	t.Run("ListTradesSince includes fresh trades", func(t *testing.T) {
		trades, err := database.ListTradesSince(ctx, userA, "-24 hours")
		if err != nil {
			t.Fatalf("Failed to list trades: %v", err)
		}
		if len(trades) != 1 {
			t.Errorf("expected 1 trade, got %d", len(trades))
		}
	})
}

func TestWalletUpsertAccumulates(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := seedUser(t, database, "w@example.com")
	btc := seedCrypto(t, database, "BTC", "Bitcoin")

	apply := func(delta float64) error {
		return database.WithTx(ctx, func(tx *sql.Tx) error {
			return UpsertWalletTx(tx, user, btc, delta)
		})
	}

	if err := apply(1.5); err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	if err := apply(0.5); err != nil {
		t.Fatalf("Failed to add to wallet: %v", err)
	}

	w, err := database.GetWallet(ctx, user, btc)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if w == nil || w.Balance != 2.0 {
		t.Fatalf("expected balance 2.0, got %+v", w)
	}

	t.Run("negative delta debits existing balance", func(t *testing.T) {
		if err := apply(-0.5); err != nil {
			t.Fatalf("Failed to debit wallet: %v", err)
		}
		w, err := database.GetWallet(ctx, user, btc)
		if err != nil {
			t.Fatalf("Failed to get wallet: %v", err)
		}
		if w.Balance != 1.5 {
			t.Errorf("expected balance 1.5 after debit, got %v", w.Balance)
		}
	})

	t.Run("negative balance rejected by constraint", func(t *testing.T) {
		if err := apply(-5); err == nil {
			t.Error("expected constraint violation, got nil")
		}
		w, err := database.GetWallet(ctx, user, btc)
		if err != nil {
			t.Fatalf("Failed to get wallet: %v", err)
		}
		if w.Balance != 1.5 {
			t.Errorf("balance changed after rolled-back tx: %v", w.Balance)
		}
	})
}

func TestTradeRollbackOnWalletFailure(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := seedUser(t, database, "rollback@example.com")
	btc := seedCrypto(t, database, "BTC", "Bitcoin")

	if err := database.WithTx(ctx, func(tx *sql.Tx) error {
		return UpsertWalletTx(tx, user, btc, 1)
	}); err != nil {
		t.Fatalf("Failed to fund wallet: %v", err)
	}

	err := database.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := InsertTradeTx(tx, Trade{
			UserID: user, CryptoID: btc, Type: "sell",
			Amount: 5, Price: 50000, TotalValue: 250000, Status: "completed",
		}); err != nil {
			return err
		}
		return UpsertWalletTx(tx, user, btc, -5)
	})
	if err == nil {
		t.Fatal("expected the overdraw to fail the transaction")
	}

	trades, err := database.ListTradesByUser(ctx, user, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list trades: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("trade row survived a rolled-back transaction: %+v", trades)
	}
	w, err := database.GetWallet(ctx, user, btc)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if w.Balance != 1 {
		t.Errorf("expected balance 1 after rollback, got %v", w.Balance)
	}
}

func TestAlertTriggerClaim(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := seedUser(t, database, "alerts@example.com")
	btc := seedCrypto(t, database, "BTC", "Bitcoin")

	id, err := database.InsertAlert(ctx, Alert{
		UserID: user, CryptoID: btc, TargetPrice: 60000,
		Condition: "above", TradeType: "buy", TradeAmount: 0.1,
	})
	if err != nil {
		t.Fatalf("Failed to insert alert: %v", err)
	}

	t.Run("first claim wins", func(t *testing.T) {
		ok, err := database.ClaimAlertTrigger(ctx, id)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if !ok {
			t.Error("expected first claim to succeed")
		}
	})

	t.Run("second claim loses", func(t *testing.T) {
		ok, err := database.ClaimAlertTrigger(ctx, id)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if ok {
			t.Error("expected second claim to fail")
		}
	})

	t.Run("release re-arms the alert", func(t *testing.T) {
		if err := database.ReleaseAlertTrigger(ctx, id); err != nil {
			t.Fatalf("Failed to release: %v", err)
		}
		ok, err := database.ClaimAlertTrigger(ctx, id)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if !ok {
			t.Error("expected claim after release to succeed")
		}
	})
}

func TestSetAlertActiveCAS(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := seedUser(t, database, "cas@example.com")
	btc := seedCrypto(t, database, "BTC", "Bitcoin")

	id, err := database.InsertAlert(ctx, Alert{
		UserID: user, CryptoID: btc, TargetPrice: 40000, Condition: "below",
		TradeType: "buy",
	})
	if err != nil {
		t.Fatalf("Failed to insert alert: %v", err)
	}

	t.Run("stale expectation fails", func(t *testing.T) {
		ok, err := database.SetAlertActive(ctx, id, false, false)
		if err != nil {
			t.Fatalf("Failed to update: %v", err)
		}
		if ok {
			t.Error("expected CAS with wrong expectation to fail")
		}
	})

	t.Run("matching expectation succeeds", func(t *testing.T) {
		ok, err := database.SetAlertActive(ctx, id, false, true)
		if err != nil {
			t.Fatalf("Failed to update: %v", err)
		}
		if !ok {
			t.Error("expected CAS to succeed")
		}
		a, err := database.GetAlert(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get alert: %v", err)
		}
		if a.IsActive {
			t.Error("alert still active after deactivation")
		}
	})

	t.Run("duplicate detection ignores inactive alerts", func(t *testing.T) {
		dup, err := database.HasDuplicateAlert(ctx, user, "BTC", 40000, "below")
		if err != nil {
			t.Fatalf("Failed to check duplicate: %v", err)
		}
		if dup {
			t.Error("inactive alert should not count as duplicate")
		}
	})
}
