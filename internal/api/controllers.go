package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"portfolio-core/internal/alert"
	"portfolio-core/internal/market"
	"portfolio-core/internal/portfolio"
	"portfolio-core/internal/reinvest"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors onto stable HTTP status codes and error
// codes. Unknown errors become 500 with a generic message.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trade.ErrInvalidAmount),
		errors.Is(err, trade.ErrInvalidTradeType),
		errors.Is(err, alert.ErrInvalidCondition),
		errors.Is(err, alert.ErrInvalidTargetPrice):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
	case errors.Is(err, trade.ErrInvalidCryptocurrency),
		errors.Is(err, alert.ErrInvalidCryptocurrency):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_CRYPTOCURRENCY", "error": err.Error()})
	case errors.Is(err, trade.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INSUFFICIENT_BALANCE", "error": err.Error()})
	case errors.Is(err, alert.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "USER_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, alert.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "ALERT_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, trade.ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "TRADE_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, reinvest.ErrProfitBelowThreshold):
		c.JSON(http.StatusBadRequest, gin.H{"code": "PROFIT_BELOW_THRESHOLD", "error": err.Error()})
	case errors.Is(err, reinvest.ErrCooldownActive):
		c.JSON(http.StatusConflict, gin.H{"code": "REINVESTMENT_COOLDOWN", "error": err.Error()})
	case errors.Is(err, reinvest.ErrNoCandidates):
		c.JSON(http.StatusConflict, gin.H{"code": "NO_REINVESTMENT_CANDIDATES", "error": err.Error()})
	case errors.Is(err, alert.ErrDuplicateAlert):
		c.JSON(http.StatusConflict, gin.H{"code": "DUPLICATE_ALERT", "error": err.Error()})
	case errors.Is(err, alert.ErrAlertAlreadyInactive):
		c.JSON(http.StatusConflict, gin.H{"code": "ALERT_ALREADY_INACTIVE", "error": err.Error()})
	case errors.Is(err, alert.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"code": "CONCURRENT_MODIFICATION", "error": err.Error()})
	case errors.Is(err, market.ErrQuoteUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "QUOTE_UNAVAILABLE", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": "internal error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ID", "error": "invalid id"})
		return 0, false
	}
	return id, true
}

// executeTrade runs a market trade for the authenticated user.
func (s *Server) executeTrade(c *gin.Context) {
	var req struct {
		Symbol    string  `json:"symbol"`
		TradeType string  `json:"trade_type"`
		Amount    float64 `json:"amount"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	tradeType, err := trade.ParseType(req.TradeType)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := s.Executor.Execute(c.Request.Context(), trade.Request{
		UserID: CurrentUserID(c),
		Symbol: req.Symbol,
		Type:   tradeType,
		Amount: req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"trade_id":    res.TradeID,
		"symbol":      res.Symbol,
		"trade_type":  res.Type,
		"amount":      res.Amount,
		"price":       res.Price,
		"total_value": res.TotalValue,
		"new_balance": res.NewBalance,
	})
}

// getTradeHistory returns the user's trades, newest first.
func (s *Server) getTradeHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trades, err := s.Executor.History(c.Request.Context(), CurrentUserID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(trades))
	for _, t := range trades {
		out = append(out, gin.H{
			"trade_id":    t.ID,
			"symbol":      t.Symbol,
			"trade_type":  t.Type,
			"amount":      t.Amount,
			"price":       t.Price,
			"total_value": t.TotalValue,
			"status":      t.Status,
			"alert_id":    t.AlertID,
			"created_at":  t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"trades": out, "count": len(out)})
}

// createAlert registers a new price alert.
func (s *Server) createAlert(c *gin.Context) {
	var req struct {
		Symbol      string  `json:"symbol"`
		TargetPrice float64 `json:"target_price"`
		Condition   string  `json:"condition"`
		TradeType   string  `json:"trade_type"`
		TradeAmount float64 `json:"trade_amount"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	a, err := s.Alerts.Create(c.Request.Context(), alert.CreateRequest{
		UserID:      CurrentUserID(c),
		Symbol:      req.Symbol,
		TargetPrice: req.TargetPrice,
		Condition:   req.Condition,
		TradeType:   req.TradeType,
		TradeAmount: req.TradeAmount,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, alertJSON(*a))
}

// listAlerts returns the user's active alerts.
func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.Alerts.List(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertJSON(a))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out, "count": len(out)})
}

// updateAlert flips an alert inactive. The client sends the status it last
// observed so a concurrent change surfaces as a conflict. Reactivation is
// not supported; a fired or disabled alert is recreated instead.
func (s *Server) updateAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		IsActive     *bool `json:"is_active"`
		ExpectActive *bool `json:"expect_active"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	if req.IsActive == nil || *req.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "only is_active=false is supported"})
		return
	}
	expect := true
	if req.ExpectActive != nil {
		expect = *req.ExpectActive
	}

	if err := s.Alerts.Deactivate(c.Request.Context(), CurrentUserID(c), id, expect); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": id, "is_active": false})
}

// getTradeProfitLoss values one trade against the current price.
func (s *Server) getTradeProfitLoss(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	pl, err := s.Executor.TradeProfitLoss(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pl)
}

// reinvestTrade routes the realized profit of one trade back into the
// market through the reinvestment service.
func (s *Server) reinvestTrade(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := CurrentUserID(c)

	pl, err := s.Executor.TradeProfitLoss(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := s.Reinvest.ReinvestProfit(c.Request.Context(), userID, pl.ProfitLoss)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// deleteAlert removes an alert. Deleting a missing alert is a no-op.
func (s *Server) deleteAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := s.Alerts.Delete(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": id, "deleted": deleted})
}

// getPortfolio values the user's holdings at current prices.
func (s *Server) getPortfolio(c *gin.Context) {
	sum, err := s.Portfolio.Calculate(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// syncPortfolio recomputes the portfolio and broadcasts the fresh summary.
func (s *Server) syncPortfolio(c *gin.Context) {
	sum, err := s.Portfolio.Sync(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// getPerformance reports trade P/L for a timeframe (default 24h).
func (s *Server) getPerformance(c *gin.Context) {
	timeframe := c.DefaultQuery("timeframe", "24h")
	perf, err := s.Portfolio.Performance(c.Request.Context(), CurrentUserID(c), timeframe)
	if err != nil {
		if errors.Is(err, portfolio.ErrInvalidTimeframe) {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_TIMEFRAME", "error": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

// getPrices returns current quotes for a comma-separated symbol list.
func (s *Server) getPrices(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_SYMBOLS", "error": "symbols query parameter is required"})
		return
	}
	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			symbols = append(symbols, part)
		}
	}

	quotes, err := s.Provider.GetCurrentPrices(c.Request.Context(), symbols)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make(map[string]gin.H, len(quotes))
	for sym, q := range quotes {
		out[sym] = gin.H{"price": q.Price, "change_24h": q.Change24h, "fetched_at": q.FetchedAt}
	}
	c.JSON(http.StatusOK, gin.H{"prices": out})
}

func alertJSON(a db.Alert) gin.H {
	return gin.H{
		"alert_id":     a.ID,
		"symbol":       a.Symbol,
		"target_price": a.TargetPrice,
		"condition":    a.Condition,
		"trade_type":   a.TradeType,
		"trade_amount": a.TradeAmount,
		"is_active":    a.IsActive,
		"is_triggered": a.IsTriggered,
		"created_at":   a.CreatedAt,
	}
}
