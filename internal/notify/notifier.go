// Package notify delivers trade and alert notifications over the event bus
// and, when configured, an outbound webhook. Delivery is best-effort and
// never blocks or fails the operation that produced the notification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"portfolio-core/internal/events"
)

// TradeNotification is published on EventTradeExecuted.
type TradeNotification struct {
	TradeID   int64   `json:"trade_id"`
	UserID    int64   `json:"user_id"`
	Symbol    string  `json:"symbol"`
	TradeType string  `json:"trade_type"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	AlertID   *int64  `json:"alert_id,omitempty"`
}

// AlertNotification is published on EventAlertFired.
type AlertNotification struct {
	AlertID     int64   `json:"alert_id"`
	UserID      int64   `json:"user_id"`
	Symbol      string  `json:"symbol"`
	Condition   string  `json:"condition"`
	TargetPrice float64 `json:"target_price"`
	Price       float64 `json:"price"`
	TradeID     *int64  `json:"trade_id,omitempty"`
	TradeError  string  `json:"trade_error,omitempty"`
}

// Notifier fans notifications out to bus subscribers and the webhook.
type Notifier struct {
	Bus        *events.Bus
	WebhookURL string
	HTTPClient *http.Client
}

func New(bus *events.Bus, webhookURL string) *Notifier {
	return &Notifier{
		Bus:        bus,
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyTradeExecuted reports a completed trade. Safe to call with a nil
// receiver so wiring stays optional in tests.
func (n *Notifier) NotifyTradeExecuted(note TradeNotification) {
	if n == nil {
		return
	}
	if n.Bus != nil {
		n.Bus.Publish(events.EventTradeExecuted, note)
	}
	n.postWebhook("trade_executed", note)
}

// NotifyAlertFired reports a fired alert, including the resulting trade id
// or the trade failure when the configured trade could not execute.
func (n *Notifier) NotifyAlertFired(note AlertNotification) {
	if n == nil {
		return
	}
	if n.Bus != nil {
		n.Bus.Publish(events.EventAlertFired, note)
	}
	n.postWebhook("alert_fired", note)
}

// postWebhook does a single-attempt POST in the background. Failures are
// logged and dropped; the ledger row is the source of truth, not the hook.
func (n *Notifier) postWebhook(kind string, payload any) {
	if n.WebhookURL == "" {
		return
	}
	body, err := json.Marshal(map[string]any{"event": kind, "data": payload})
	if err != nil {
		log.Printf("notify: marshal %s payload: %v", kind, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
		if err != nil {
			log.Printf("notify: build %s webhook request: %v", kind, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.HTTPClient.Do(req)
		if err != nil {
			log.Printf("notify: %s webhook failed: %v", kind, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("notify: %s webhook returned %d", kind, resp.StatusCode)
		}
	}()
}
