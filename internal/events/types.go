package events

// Event enumerates high-level topics inside the portfolio core.
type Event string

const (
	EventPriceTick       Event = "price_tick"
	EventTradeExecuted   Event = "trade_executed"
	EventAlertFired      Event = "alert_fired"
	EventPortfolioUpdate Event = "portfolio_update"
)
