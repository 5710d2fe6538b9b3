package events

import (
	"fmt"
	"testing"
	"time"
)

func TestPublishAndSubscribe(t *testing.T) {
	h := NewHub(16)

	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeDispatchStarted, map[string]string{"action": "up"})

	select {
	case ev := <-ch:
		if ev.Type != TypeDispatchStarted {
			t.Errorf("Type = %q, want %q", ev.Type, TypeDispatchStarted)
		}
		if ev.ID != 1 {
			t.Errorf("ID = %d, want 1", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestReplayReturnsOnlyNewerEvents(t *testing.T) {
	h := NewHub(16)

	for i := 0; i < 5; i++ {
		h.Publish(TypeDispatchOutput, map[string]int{"seq": i})
	}

	all := h.Replay(0)
	if len(all) != 5 {
		t.Fatalf("Replay(0) returned %d events, want 5", len(all))
	}

	newer := h.Replay(3)
	if len(newer) != 2 {
		t.Fatalf("Replay(3) returned %d events, want 2", len(newer))
	}
	if newer[0].ID != 4 || newer[1].ID != 5 {
		t.Errorf("Replay(3) IDs = %d, %d; want 4, 5", newer[0].ID, newer[1].ID)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)

	for i := 0; i < 5; i++ {
		h.Publish(TypeDispatchOutput, nil)
	}

	got := h.Replay(0)
	if len(got) != 3 {
		t.Fatalf("Replay returned %d events, want ring capacity 3", len(got))
	}
	for i, ev := range got {
		if want := int64(i + 3); ev.ID != want {
			t.Errorf("event %d ID = %d, want %d", i, ev.ID, want)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(8)

	// Never drained; channel buffer is 128.
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.Publish(TypeDispatchOutput, fmt.Sprintf("line %d", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(8)

	ch, cancel := h.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic.
	h.Publish(TypeDispatchFinished, nil)
}
