// Package db provides the embedded ledger store shared by the trade, alert
// and portfolio services. All multi-statement writes go through WithTx.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// ----------------------------------------
// Wallet queries (transactional)
// ----------------------------------------

// WalletBalanceTx reads the balance for a (user, crypto) pair inside tx.
// The second return reports whether the wallet exists.
func WalletBalanceTx(tx *sql.Tx, userID, cryptoID int64) (float64, bool, error) {
	var balance float64
	err := tx.QueryRow(`
		SELECT balance FROM wallets WHERE user_id = ? AND crypto_id = ?
	`, userID, cryptoID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query wallet balance: %w", err)
	}
	return balance, true, nil
}

// UpsertWalletTx applies a signed balance delta inside tx, creating the
// wallet on first use. The update runs first so the balance CHECK sees the
// summed balance rather than the raw delta; an ON CONFLICT upsert would
// evaluate the CHECK against the proposed row and reject every negative
// delta outright. The CHECK still rejects an update that would drive the
// balance negative.
func UpsertWalletTx(tx *sql.Tx, userID, cryptoID int64, delta float64) error {
	res, err := tx.Exec(`
		UPDATE wallets SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND crypto_id = ?
	`, delta, userID, cryptoID)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = tx.Exec(`
		INSERT INTO wallets (user_id, crypto_id, balance, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, userID, cryptoID, delta)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// InsertTradeTx appends a trade row inside tx and returns the new id.
func InsertTradeTx(tx *sql.Tx, t Trade) (int64, error) {
	var alertID sql.NullInt64
	if t.AlertID != nil {
		alertID = sql.NullInt64{Int64: *t.AlertID, Valid: true}
	}
	res, err := tx.Exec(`
		INSERT INTO trades (user_id, crypto_id, trade_type, amount, price, total_value, status, alert_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, t.UserID, t.CryptoID, t.Type, t.Amount, t.Price, t.TotalValue, t.Status, alertID)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return res.LastInsertId()
}

// ----------------------------------------
// Wallet / trade reads
// ----------------------------------------

// Holding joins a wallet with its asset for portfolio calculations.
type Holding struct {
	Symbol  string
	Name    string
	Balance float64
}

// ListHoldings returns all wallets with a positive balance for a user.
func (d *Database) ListHoldings(ctx context.Context, userID int64) ([]Holding, error) {
	if userID <= 0 {
		return nil, ErrUserIDRequired
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT c.symbol, c.name, w.balance
		FROM wallets w
		JOIN cryptocurrencies c ON w.crypto_id = c.id
		WHERE w.user_id = ? AND w.balance > 0
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.Symbol, &h.Name, &h.Balance); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetTrade returns one trade, joined with its symbol.
func (d *Database) GetTrade(ctx context.Context, tradeID int64) (*Trade, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.crypto_id, c.symbol, t.trade_type, t.amount, t.price,
		       t.total_value, t.status, t.alert_id, t.created_at
		FROM trades t
		JOIN cryptocurrencies c ON t.crypto_id = c.id
		WHERE t.id = ?
	`, tradeID)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}
	return t, nil
}

// ListTradesByUser returns a user's trades, newest first.
func (d *Database) ListTradesByUser(ctx context.Context, userID int64, limit, offset int) ([]Trade, error) {
	if userID <= 0 {
		return nil, ErrUserIDRequired
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.crypto_id, c.symbol, t.trade_type, t.amount, t.price,
		       t.total_value, t.status, t.alert_id, t.created_at
		FROM trades t
		JOIN cryptocurrencies c ON t.crypto_id = c.id
		WHERE t.user_id = ?
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListTradesSince returns a user's trades created within the given SQLite
// datetime modifier (e.g. "-24 hours", "-7 days"), oldest first, for
// performance calculations.
func (d *Database) ListTradesSince(ctx context.Context, userID int64, modifier string) ([]Trade, error) {
	if userID <= 0 {
		return nil, ErrUserIDRequired
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.crypto_id, c.symbol, t.trade_type, t.amount, t.price,
		       t.total_value, t.status, t.alert_id, t.created_at
		FROM trades t
		JOIN cryptocurrencies c ON t.crypto_id = c.id
		WHERE t.user_id = ? AND t.created_at >= datetime('now', ?)
		ORDER BY t.created_at ASC, t.id ASC
	`, userID, modifier)
	if err != nil {
		return nil, fmt.Errorf("query trades since: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// SumTradeAmounts returns the signed sum of trade amounts for a wallet pair
// (buys positive, sells negative). Used to verify conservation.
func (d *Database) SumTradeAmounts(ctx context.Context, userID, cryptoID int64) (float64, error) {
	var sum float64
	err := d.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE trade_type WHEN 'buy' THEN amount ELSE -amount END), 0)
		FROM trades WHERE user_id = ? AND crypto_id = ?
	`, userID, cryptoID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum trade amounts: %w", err)
	}
	return sum, nil
}

// CountTradesByAlert returns how many trades reference an alert.
func (d *Database) CountTradesByAlert(ctx context.Context, alertID int64) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades WHERE alert_id = ?
	`, alertID).Scan(&n)
	return n, err
}

// ----------------------------------------
// Alert queries
// ----------------------------------------

// InsertAlert creates an alert (active, untriggered) and returns its id.
func (d *Database) InsertAlert(ctx context.Context, a Alert) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO alerts (user_id, crypto_id, target_price, condition, trade_type, trade_amount,
		                    is_active, is_triggered, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, a.UserID, a.CryptoID, a.TargetPrice, a.Condition, a.TradeType, a.TradeAmount)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return res.LastInsertId()
}

// HasDuplicateAlert reports whether an active, untriggered alert already
// exists for the same (user, symbol, target, condition) tuple.
func (d *Database) HasDuplicateAlert(ctx context.Context, userID int64, symbol string, targetPrice float64, condition string) (bool, error) {
	var id int64
	err := d.DB.QueryRowContext(ctx, `
		SELECT a.id FROM alerts a
		JOIN cryptocurrencies c ON a.crypto_id = c.id
		WHERE a.user_id = ? AND c.symbol = ?
		  AND a.target_price = ? AND a.condition = ?
		  AND a.is_active = 1 AND a.is_triggered = 0
	`, userID, strings.ToUpper(symbol), targetPrice, condition).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query duplicate alert: %w", err)
	}
	return true, nil
}

// GetAlert returns one alert joined with its symbol, or ErrNotFound.
func (d *Database) GetAlert(ctx context.Context, alertID int64) (*Alert, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT a.id, a.user_id, a.crypto_id, c.symbol, a.target_price, a.condition,
		       a.trade_type, a.trade_amount, a.is_active, a.is_triggered, a.created_at, a.updated_at
		FROM alerts a
		JOIN cryptocurrencies c ON a.crypto_id = c.id
		WHERE a.id = ?
	`, alertID)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	return a, nil
}

// ListActiveAlerts returns all active, untriggered alerts across users for
// an evaluation pass.
func (d *Database) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.crypto_id, c.symbol, a.target_price, a.condition,
		       a.trade_type, a.trade_amount, a.is_active, a.is_triggered, a.created_at, a.updated_at
		FROM alerts a
		JOIN cryptocurrencies c ON a.crypto_id = c.id
		WHERE a.is_active = 1 AND a.is_triggered = 0
		ORDER BY a.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListAlertsByUser returns a user's active alerts.
func (d *Database) ListAlertsByUser(ctx context.Context, userID int64) ([]Alert, error) {
	if userID <= 0 {
		return nil, ErrUserIDRequired
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.crypto_id, c.symbol, a.target_price, a.condition,
		       a.trade_type, a.trade_amount, a.is_active, a.is_triggered, a.created_at, a.updated_at
		FROM alerts a
		JOIN cryptocurrencies c ON a.crypto_id = c.id
		WHERE a.user_id = ? AND a.is_active = 1
		ORDER BY a.created_at DESC, a.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// SetAlertActive flips is_active behind a compare-and-set against the
// caller's last-known value. Returns false when another writer got there
// first (0 rows affected).
func (d *Database) SetAlertActive(ctx context.Context, alertID int64, active, expectActive bool) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE alerts
		SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = ?
	`, active, alertID, expectActive)
	if err != nil {
		return false, fmt.Errorf("update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimAlertTrigger atomically claims the fire-right for an alert. Exactly
// one caller can win; everyone else sees 0 rows affected.
func (d *Database) ClaimAlertTrigger(ctx context.Context, alertID int64) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE alerts
		SET is_triggered = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = 1 AND is_triggered = 0
	`, alertID)
	if err != nil {
		return false, fmt.Errorf("claim alert trigger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseAlertTrigger undoes a claim whose follow-up trade failed, so a
// later evaluation pass can retry.
func (d *Database) ReleaseAlertTrigger(ctx context.Context, alertID int64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE alerts
		SET is_triggered = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_triggered = 1
	`, alertID)
	if err != nil {
		return fmt.Errorf("release alert trigger: %w", err)
	}
	return nil
}

// DeleteAlert removes an alert owned by userID. Returns false when no such
// row exists; that is a benign no-op, not a failure.
func (d *Database) DeleteAlert(ctx context.Context, alertID, userID int64) (bool, error) {
	if userID <= 0 {
		return false, ErrUserIDRequired
	}

	res, err := d.DB.ExecContext(ctx, `
		DELETE FROM alerts WHERE id = ? AND user_id = ?
	`, alertID, userID)
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ----------------------------------------
// Row scanning helpers
// ----------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var t Trade
	var alertID sql.NullInt64
	if err := row.Scan(&t.ID, &t.UserID, &t.CryptoID, &t.Symbol, &t.Type, &t.Amount,
		&t.Price, &t.TotalValue, &t.Status, &alertID, &t.CreatedAt); err != nil {
		return nil, err
	}
	if alertID.Valid {
		t.AlertID = &alertID.Int64
	}
	return &t, nil
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	if err := row.Scan(&a.ID, &a.UserID, &a.CryptoID, &a.Symbol, &a.TargetPrice, &a.Condition,
		&a.TradeType, &a.TradeAmount, &a.IsActive, &a.IsTriggered, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAlerts(rows *sql.Rows) ([]Alert, error) {
	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
