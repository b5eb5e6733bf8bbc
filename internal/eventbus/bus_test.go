package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New[int]()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(7)
	if v := <-a; v != 7 {
		t.Fatalf("subscriber a got %d", v)
	}
	if v := <-c; v != 7 {
		t.Fatalf("subscriber c got %d", v)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New[string]()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish("one")
	b.Publish("two")
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	t.Parallel()
	b := New[int]()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
	b.Publish(1) // must not panic
}
