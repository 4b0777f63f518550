package alert

import (
	"context"
	"log"
	"sync"
	"time"
)

// Monitor runs evaluation passes on a fixed interval.
type Monitor struct {
	Service  *Service
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(svc *Service, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{Service: svc, Interval: interval}
}

// Start launches the evaluation loop. Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		log.Printf("alerts: monitor started (interval %v)", m.Interval)
		for {
			select {
			case <-ctx.Done():
				log.Println("alerts: monitor stopped")
				return
			case <-t.C:
				m.Service.EvaluateActiveAlerts(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
