package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: Decision, Data: DecisionEvent{EntryID: "e1"}})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Type != Decision || ev.Time.IsZero() {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if d, ok := ev.Data.(DecisionEvent); !ok || d.EntryID != "e1" {
			t.Fatalf("unexpected payload: %#v", ev.Data)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TickStarted})
	}
	if got := b.Dropped(); got != 9 {
		t.Fatalf("Dropped = %d, want 9", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: TickFinished})
}
