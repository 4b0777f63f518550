package trade

import (
	"fmt"
	"strings"
)

// Type is the direction of a trade.
type Type string

const (
	Buy  Type = "buy"
	Sell Type = "sell"
)

// ParseType validates a trade type string.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTradeType, s)
	}
}

// Request describes a trade to execute.
type Request struct {
	UserID  int64
	Symbol  string
	Type    Type
	Amount  float64
	AlertID *int64 // set when the trade was fired by an alert
}

// Result is the outcome of a successful execution.
type Result struct {
	TradeID    int64
	Symbol     string
	Type       Type
	Amount     float64
	Price      float64
	TotalValue float64
	NewBalance float64
}
