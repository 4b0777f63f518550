package events

import (
	"sync"
)

// Envelope pairs a payload with its topic. Subscribers and the websocket
// feed share this shape, so a payload crosses the wire exactly as it was
// published.
type Envelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data"`
}

// Bus is a lightweight in-process broker. One subscriber channel may be
// registered under several topics at once.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Envelope
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Envelope)}
}

// Subscribe registers a listener for the given topics and returns the
// channel and an unsubscribe function. The channel carries envelopes, so a
// multi-topic subscriber can tell deliveries apart.
func (b *Bus) Subscribe(buffer int, topics ...Event) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	for _, e := range topics {
		b.subs[e] = append(b.subs[e], ch)
	}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		closed := false
		for _, e := range topics {
			subs := b.subs[e]
			for i, c := range subs {
				if c == ch {
					b.subs[e] = append(subs[:i], subs[i+1:]...)
					if !closed {
						close(c)
						closed = true
					}
					break
				}
			}
		}
	}

	return ch, unsub
}

// Publish wraps the payload in an envelope and fans it out without
// blocking.
func (b *Bus) Publish(e Event, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	env := Envelope{Event: e, Data: data}
	for _, ch := range b.subs[e] {
		select {
		case ch <- env:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
