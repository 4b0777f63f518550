// Package trade executes buy and sell orders against user wallets, writing
// the trade and the balance change atomically in one transaction.
package trade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"portfolio-core/internal/market"
	"portfolio-core/internal/monitor"
	"portfolio-core/internal/notify"
	"portfolio-core/pkg/db"
)

var (
	ErrInvalidTradeType      = errors.New("invalid trade type")
	ErrInvalidAmount         = errors.New("trade amount must be positive")
	ErrInvalidCryptocurrency = errors.New("invalid cryptocurrency")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrTradeNotFound         = errors.New("trade not found")
)

// Executor runs trades. Price discovery goes through the market provider;
// persistence is a single transaction covering the ledger row and the
// wallet delta.
type Executor struct {
	DB       *db.Database
	Provider market.Provider
	Notifier *notify.Notifier
	Metrics  *monitor.SystemMetrics
}

func NewExecutor(database *db.Database, provider market.Provider, notifier *notify.Notifier, metrics *monitor.SystemMetrics) *Executor {
	return &Executor{DB: database, Provider: provider, Notifier: notifier, Metrics: metrics}
}

// Execute runs one trade at the provider's current price. On success the
// trade row and the wallet balance are committed together; a sell that
// would drive the balance negative rolls back with ErrInsufficientBalance.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Type != Buy && req.Type != Sell {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTradeType, req.Type)
	}

	crypto, err := e.DB.GetCryptoBySymbol(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCryptocurrency, req.Symbol)
		}
		return nil, fmt.Errorf("resolve %s: %w", req.Symbol, err)
	}

	// Early balance check to fail fast; re-checked inside the transaction
	// because another trade may commit between here and the write.
	if req.Type == Sell {
		w, err := e.DB.GetWallet(ctx, req.UserID, crypto.ID)
		if err != nil {
			return nil, fmt.Errorf("load wallet: %w", err)
		}
		if w == nil || w.Balance < req.Amount {
			return nil, ErrInsufficientBalance
		}
	}

	quote, err := e.Provider.GetCurrentPrice(ctx, crypto.Symbol)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Symbol:     crypto.Symbol,
		Type:       req.Type,
		Amount:     req.Amount,
		Price:      quote.Price,
		TotalValue: req.Amount * quote.Price,
	}

	stop := e.Metrics.TradeTimer()
	err = e.DB.WithTx(ctx, func(tx *sql.Tx) error {
		delta := req.Amount
		if req.Type == Sell {
			balance, ok, err := db.WalletBalanceTx(tx, req.UserID, crypto.ID)
			if err != nil {
				return fmt.Errorf("check balance: %w", err)
			}
			if !ok || balance < req.Amount {
				return ErrInsufficientBalance
			}
			delta = -req.Amount
			res.NewBalance = balance + delta
		}

		id, err := db.InsertTradeTx(tx, db.Trade{
			UserID:     req.UserID,
			CryptoID:   crypto.ID,
			Type:       string(req.Type),
			Amount:     req.Amount,
			Price:      quote.Price,
			TotalValue: res.TotalValue,
			Status:     "completed",
			AlertID:    req.AlertID,
		})
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		res.TradeID = id

		if err := db.UpsertWalletTx(tx, req.UserID, crypto.ID, delta); err != nil {
			return fmt.Errorf("update wallet: %w", err)
		}

		if req.Type == Buy {
			balance, _, err := db.WalletBalanceTx(tx, req.UserID, crypto.ID)
			if err != nil {
				return fmt.Errorf("read balance: %w", err)
			}
			res.NewBalance = balance
		}
		return nil
	})
	stop()
	if err != nil {
		e.Metrics.IncrErrors()
		return nil, err
	}

	e.Metrics.IncrTradesExecuted()
	log.Printf("executor: user=%d %s %.8f %s @ %.2f (trade=%d)",
		req.UserID, req.Type, req.Amount, crypto.Symbol, quote.Price, res.TradeID)

	e.Notifier.NotifyTradeExecuted(notify.TradeNotification{
		TradeID:   res.TradeID,
		UserID:    req.UserID,
		Symbol:    crypto.Symbol,
		TradeType: string(req.Type),
		Amount:    req.Amount,
		Price:     quote.Price,
		AlertID:   req.AlertID,
	})
	return res, nil
}

// History returns the user's trades, newest first.
func (e *Executor) History(ctx context.Context, userID int64, limit, offset int) ([]db.Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return e.DB.ListTradesByUser(ctx, userID, limit, offset)
}

// ProfitLoss holds one trade marked to the current price.
type ProfitLoss struct {
	TradeID    int64   `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	TradeType  string  `json:"trade_type"`
	Amount     float64 `json:"amount"`
	EntryPrice float64 `json:"entry_price"`
	Price      float64 `json:"current_price"`
	ProfitLoss float64 `json:"profit_loss"`
	Percent    float64 `json:"profit_loss_percent"`
}

// TradeProfitLoss values one of the user's trades against the current
// price. Buys gain when the price rises above the entry, sells gain when
// it falls below.
func (e *Executor) TradeProfitLoss(ctx context.Context, userID, tradeID int64) (*ProfitLoss, error) {
	t, err := e.DB.GetTrade(ctx, tradeID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	if t.UserID != userID {
		return nil, ErrTradeNotFound
	}

	quote, err := e.Provider.GetCurrentPrice(ctx, t.Symbol)
	if err != nil {
		return nil, err
	}

	pl := (quote.Price - t.Price) * t.Amount
	if t.Type == string(Sell) {
		pl = (t.Price - quote.Price) * t.Amount
	}

	out := &ProfitLoss{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		TradeType:  t.Type,
		Amount:     t.Amount,
		EntryPrice: t.Price,
		Price:      quote.Price,
		ProfitLoss: pl,
	}
	if t.TotalValue > 0 {
		out.Percent = pl / t.TotalValue * 100
	}
	return out, nil
}
