package events

import (
	"testing"
	"time"
)

func TestBusMultiTopicSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4, EventPriceTick, EventAlertFired)
	defer unsub()

	bus.Publish(EventPriceTick, "tick")
	bus.Publish(EventTradeExecuted, "ignored")
	bus.Publish(EventAlertFired, "fired")

	want := []Envelope{
		{Event: EventPriceTick, Data: "tick"},
		{Event: EventAlertFired, Data: "fired"},
	}
	for _, w := range want {
		select {
		case env := <-ch:
			if env != w {
				t.Errorf("expected %+v, got %+v", w, env)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing delivery for %q", w.Event)
		}
	}
	select {
	case env := <-ch:
		t.Errorf("unexpected delivery: %+v", env)
	default:
	}
}

func TestBusUnsubscribeClosesOnce(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventPriceTick, EventTradeExecuted)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}
	// publishes after unsubscribe must not panic on the closed channel
	bus.Publish(EventPriceTick, "late")
	bus.Publish(EventTradeExecuted, "late")
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventPriceTick)
	defer unsub()

	bus.Publish(EventPriceTick, 1)
	bus.Publish(EventPriceTick, 2)

	env := <-ch
	if env.Data != 1 {
		t.Errorf("expected first payload kept, got %+v", env)
	}
	select {
	case env := <-ch:
		t.Errorf("overflow payload should be dropped, got %+v", env)
	default:
	}
}
