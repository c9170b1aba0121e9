package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	Publish(b, "card.created", "x")
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != "card.created" || e.Data != "x" || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	unsub()

	var got []string
	for e := range ch {
		got = append(got, e.Type)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v, want [a]", got)
	}
}

func TestPublishNilBus(t *testing.T) {
	Publish(nil, "ignored", nil)
}
