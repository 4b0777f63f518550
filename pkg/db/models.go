package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User represents an application user.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Cryptocurrency is a tradable asset. The price columns are an informational
// snapshot refreshed by the market poller; the authoritative price always
// comes from the provider at transaction time.
type Cryptocurrency struct {
	ID             int64
	Symbol         string
	Name           string
	CurrentPrice   float64
	MarketCap      float64
	Volume24h      float64
	PriceChange24h float64
	UpdatedAt      time.Time
}

// Wallet holds a user's balance for one asset.
type Wallet struct {
	ID        int64
	UserID    int64
	CryptoID  int64
	Balance   float64
	UpdatedAt time.Time
}

// Trade is an immutable ledger entry. Rows are append-only; once inserted
// they are never mutated.
type Trade struct {
	ID         int64
	UserID     int64
	CryptoID   int64
	Symbol     string // joined from cryptocurrencies
	Type       string
	Amount     float64
	Price      float64
	TotalValue float64
	Status     string
	AlertID    *int64
	CreatedAt  time.Time
}

// Alert is a price alert with optional configured trade parameters.
type Alert struct {
	ID          int64
	UserID      int64
	CryptoID    int64
	Symbol      string // joined from cryptocurrencies
	TargetPrice float64
	Condition   string
	TradeType   string
	TradeAmount float64
	IsActive    bool
	IsTriggered bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateUser inserts a new user row and returns its id.
func (d *Database) CreateUser(ctx context.Context, u User) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, u.Username, strings.ToLower(u.Email), u.PasswordHash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether a user row exists.
func (d *Database) UserExists(ctx context.Context, userID int64) (bool, error) {
	var id int64
	err := d.DB.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertCryptocurrency creates or renames a cryptocurrency row by symbol.
func (d *Database) UpsertCryptocurrency(ctx context.Context, symbol, name string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO cryptocurrencies (symbol, name, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			updated_at = CURRENT_TIMESTAMP
	`, strings.ToUpper(symbol), name)
	return err
}

// GetCryptoBySymbol resolves a cryptocurrency by symbol (case-insensitive).
// Returns ErrNotFound when the symbol is unknown.
func (d *Database) GetCryptoBySymbol(ctx context.Context, symbol string) (*Cryptocurrency, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, name, current_price, market_cap, volume_24h, price_change_24h, updated_at
		FROM cryptocurrencies WHERE symbol = ?
	`, strings.ToUpper(symbol))
	var c Cryptocurrency
	if err := row.Scan(&c.ID, &c.Symbol, &c.Name, &c.CurrentPrice, &c.MarketCap, &c.Volume24h, &c.PriceChange24h, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateCryptoSnapshot refreshes the informational price columns for a
// symbol. Market cap and volume keep their last value when the upstream did
// not report them.
func (d *Database) UpdateCryptoSnapshot(ctx context.Context, symbol string, price, change24h, marketCap, volume24h float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE cryptocurrencies
		SET current_price = ?, price_change_24h = ?,
			market_cap = CASE WHEN ? > 0 THEN ? ELSE market_cap END,
			volume_24h = CASE WHEN ? > 0 THEN ? ELSE volume_24h END,
			updated_at = CURRENT_TIMESTAMP
		WHERE symbol = ?
	`, price, change24h, marketCap, marketCap, volume24h, volume24h, strings.ToUpper(symbol))
	return err
}

// ListCryptoSnapshots returns every known asset with its latest market
// snapshot, used for reinvestment candidate selection.
func (d *Database) ListCryptoSnapshots(ctx context.Context) ([]Cryptocurrency, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, name, current_price, market_cap, volume_24h, price_change_24h, updated_at
		FROM cryptocurrencies ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cryptocurrency
	for rows.Next() {
		var c Cryptocurrency
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Name, &c.CurrentPrice, &c.MarketCap, &c.Volume24h, &c.PriceChange24h, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetWallet returns the wallet for a (user, crypto) pair, or nil when absent.
func (d *Database) GetWallet(ctx context.Context, userID, cryptoID int64) (*Wallet, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, crypto_id, balance, updated_at
		FROM wallets WHERE user_id = ? AND crypto_id = ?
	`, userID, cryptoID)
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.CryptoID, &w.Balance, &w.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}
