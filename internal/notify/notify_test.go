package notify

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(TaskCreated, 42)
	select {
	case e := <-ch:
		if e.Change != TaskCreated || e.TaskID != 42 {
			t.Fatalf("event = %+v", e)
		}
		if e.ID == "" {
			t.Fatal("event id empty")
		}
		if e.Time.IsZero() {
			t.Fatal("event time zero")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Publish never blocks, even with a full subscriber buffer.
	b.Publish(TaskCreated, 1)
	b.Publish(TaskUpdated, 2)
	b.Publish(TaskDeleted, 3)

	e := <-ch
	if e.TaskID != 1 {
		t.Fatalf("first event task id = %d, want 1", e.TaskID)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %+v; overflow should drop", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel open after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(TaskCreated, 1)
	unsub() // idempotent
}
