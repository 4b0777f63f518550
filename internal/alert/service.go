// Package alert manages price alerts: creation, deactivation, and the
// periodic evaluation pass that fires alerts and executes their configured
// trades.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"portfolio-core/internal/market"
	"portfolio-core/internal/monitor"
	"portfolio-core/internal/notify"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/db"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidCryptocurrency  = errors.New("invalid cryptocurrency")
	ErrInvalidCondition       = errors.New("condition must be \"above\" or \"below\"")
	ErrInvalidTargetPrice     = errors.New("target price must be positive")
	ErrDuplicateAlert         = errors.New("duplicate alert")
	ErrAlertNotFound          = errors.New("alert not found")
	ErrAlertAlreadyInactive   = errors.New("alert already inactive")
	ErrConcurrentModification = errors.New("alert modified concurrently")
)

// CreateRequest describes a new alert. TradeAmount zero means the alert
// only notifies when it fires, without executing a trade.
type CreateRequest struct {
	UserID      int64
	Symbol      string
	TargetPrice float64
	Condition   string
	TradeType   string
	TradeAmount float64
}

// Service manages alerts and runs evaluation passes.
type Service struct {
	DB       *db.Database
	Provider market.Provider
	Executor *trade.Executor
	Notifier *notify.Notifier
	Metrics  *monitor.SystemMetrics
}

func NewService(database *db.Database, provider market.Provider, executor *trade.Executor, notifier *notify.Notifier, metrics *monitor.SystemMetrics) *Service {
	return &Service{DB: database, Provider: provider, Executor: executor, Notifier: notifier, Metrics: metrics}
}

// Create registers a new active alert. An identical active, untriggered
// alert for the same user suppresses the new one with ErrDuplicateAlert.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*db.Alert, error) {
	cond := strings.ToLower(strings.TrimSpace(req.Condition))
	if cond != "above" && cond != "below" {
		return nil, ErrInvalidCondition
	}
	if req.TargetPrice <= 0 {
		return nil, ErrInvalidTargetPrice
	}

	tradeType := trade.Buy
	if req.TradeType != "" {
		var err error
		tradeType, err = trade.ParseType(req.TradeType)
		if err != nil {
			return nil, err
		}
	}
	if req.TradeAmount < 0 {
		return nil, trade.ErrInvalidAmount
	}

	ok, err := s.DB.UserExists(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	crypto, err := s.DB.GetCryptoBySymbol(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCryptocurrency, req.Symbol)
		}
		return nil, fmt.Errorf("resolve %s: %w", req.Symbol, err)
	}

	dup, err := s.DB.HasDuplicateAlert(ctx, req.UserID, crypto.Symbol, req.TargetPrice, cond)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		return nil, ErrDuplicateAlert
	}

	id, err := s.DB.InsertAlert(ctx, db.Alert{
		UserID:      req.UserID,
		CryptoID:    crypto.ID,
		TargetPrice: req.TargetPrice,
		Condition:   cond,
		TradeType:   string(tradeType),
		TradeAmount: req.TradeAmount,
	})
	if err != nil {
		return nil, err
	}
	return s.DB.GetAlert(ctx, id)
}

// Deactivate flips an alert to inactive behind a compare-and-set. The
// caller states the status it last observed; a mismatch means someone else
// changed the alert in between.
func (s *Service) Deactivate(ctx context.Context, userID, alertID int64, expectActive bool) error {
	a, err := s.DB.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrAlertNotFound
		}
		return err
	}
	if a.UserID != userID {
		return ErrAlertNotFound
	}
	if !a.IsActive {
		return ErrAlertAlreadyInactive
	}

	ok, err := s.DB.SetAlertActive(ctx, alertID, false, expectActive)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConcurrentModification
	}
	return nil
}

// Delete removes an alert the user owns. Deleting a missing alert is a
// no-op and returns false.
func (s *Service) Delete(ctx context.Context, userID, alertID int64) (bool, error) {
	return s.DB.DeleteAlert(ctx, alertID, userID)
}

// List returns the user's active alerts.
func (s *Service) List(ctx context.Context, userID int64) ([]db.Alert, error) {
	return s.DB.ListAlertsByUser(ctx, userID)
}

// EvaluateActiveAlerts runs one evaluation pass over every active,
// untriggered alert. Quotes are fetched once per distinct symbol; a failure
// on one alert never stops the pass.
func (s *Service) EvaluateActiveAlerts(ctx context.Context) {
	alerts, err := s.DB.ListActiveAlerts(ctx)
	if err != nil {
		log.Printf("alerts: list active: %v", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	seen := make(map[string]struct{})
	var symbols []string
	for _, a := range alerts {
		if _, ok := seen[a.Symbol]; !ok {
			seen[a.Symbol] = struct{}{}
			symbols = append(symbols, a.Symbol)
		}
	}

	quotes, err := s.Provider.GetCurrentPrices(ctx, symbols)
	if err != nil {
		log.Printf("alerts: fetch quotes: %v", err)
		return
	}

	for _, a := range alerts {
		q, ok := quotes[a.Symbol]
		if !ok {
			// No quote this pass; the alert stays armed for the next one.
			continue
		}
		if !conditionMet(a, q.Price) {
			continue
		}
		if err := s.fire(ctx, a, q.Price); err != nil {
			log.Printf("alerts: fire alert %d: %v", a.ID, err)
		}
	}
}

func conditionMet(a db.Alert, price float64) bool {
	switch a.Condition {
	case "above":
		return price >= a.TargetPrice
	case "below":
		return price <= a.TargetPrice
	default:
		return false
	}
}

// fire claims the trigger first so concurrent passes cannot double-fire,
// then executes the configured trade. A failed trade releases the claim so
// a later pass can retry.
func (s *Service) fire(ctx context.Context, a db.Alert, price float64) error {
	claimed, err := s.DB.ClaimAlertTrigger(ctx, a.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another pass (or a deactivation) got there first.
		return nil
	}

	note := notify.AlertNotification{
		AlertID:     a.ID,
		UserID:      a.UserID,
		Symbol:      a.Symbol,
		Condition:   a.Condition,
		TargetPrice: a.TargetPrice,
		Price:       price,
	}

	if a.TradeAmount > 0 {
		tradeType, err := trade.ParseType(a.TradeType)
		if err != nil {
			tradeType = trade.Buy
		}
		res, err := s.Executor.Execute(ctx, trade.Request{
			UserID:  a.UserID,
			Symbol:  a.Symbol,
			Type:    tradeType,
			Amount:  a.TradeAmount,
			AlertID: &a.ID,
		})
		if err != nil {
			if relErr := s.DB.ReleaseAlertTrigger(ctx, a.ID); relErr != nil {
				log.Printf("alerts: release claim %d: %v", a.ID, relErr)
			}
			note.TradeError = err.Error()
			s.Notifier.NotifyAlertFired(note)
			return fmt.Errorf("execute alert trade: %w", err)
		}
		note.TradeID = &res.TradeID
	}

	s.Metrics.IncrAlertsFired()
	log.Printf("alerts: fired alert %d (%s %s %.2f at %.2f)",
		a.ID, a.Symbol, a.Condition, a.TargetPrice, price)
	s.Notifier.NotifyAlertFired(note)
	return nil
}
