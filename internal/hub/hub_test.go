package hub

import (
	"bytes"
	"context"
	"fmt"
	"testing"
)

func recvOne(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	default:
		t.Fatal("no message queued")
	}
	return nil
}

func TestLateJoinerGetsSnapshot(t *testing.T) {
	state := []byte("empty")
	h := New(Options{Snapshot: func() []byte { return state }})

	for i := 1; i <= 3; i++ {
		state = []byte(fmt.Sprintf("state-%d", i))
		h.Publish(state)
	}

	_, ch, err := h.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := recvOne(t, ch); !bytes.Equal(got, []byte("state-3")) {
		t.Fatalf("first message = %q, want the post-publish state", got)
	}
}

func TestPublishFansOut(t *testing.T) {
	h := New(Options{})
	var chans []<-chan []byte
	for i := 0; i < 4; i++ {
		_, ch, err := h.Subscribe()
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		chans = append(chans, ch)
	}
	h.Publish([]byte("update"))
	for i, ch := range chans {
		if got := recvOne(t, ch); !bytes.Equal(got, []byte("update")) {
			t.Fatalf("subscriber %d got %q", i, got)
		}
	}
}

func TestStalledSubscriberIsIsolated(t *testing.T) {
	h := New(Options{SendBuffer: 1})
	var healthy []<-chan []byte
	var stalledID uint64
	for i := 0; i < 5; i++ {
		id, ch, err := h.Subscribe()
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if i == 2 {
			stalledID = id
			continue // never drained
		}
		healthy = append(healthy, ch)
	}

	// First publish fills every queue; draining only the healthy ones
	// leaves subscriber 2 stalled on the second.
	h.Publish([]byte("one"))
	for _, ch := range healthy {
		recvOne(t, ch)
	}
	h.Publish([]byte("two"))

	if got := h.Subscribers(); got != 4 {
		t.Fatalf("subscriber count = %d, want 4 after drop", got)
	}
	for i, ch := range healthy {
		if got := recvOne(t, ch); !bytes.Equal(got, []byte("two")) {
			t.Fatalf("healthy subscriber %d got %q", i, got)
		}
	}
	// Dropping the already-dropped id is a no-op.
	h.Unsubscribe(stalledID)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New(Options{})
	id, ch, err := h.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	h.Unsubscribe(id)
	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	h.Publish([]byte("after"))
}

func TestSubmitCommandForwards(t *testing.T) {
	var gotID uint64
	var gotText string
	h := New(Options{
		Commands: CommandSinkFunc(func(_ context.Context, id uint64, text string) error {
			gotID, gotText = id, text
			return nil
		}),
	})
	id, _, err := h.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := h.SubmitCommand(context.Background(), id, "arm"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotID != id || gotText != "arm" {
		t.Fatalf("sink saw id=%d text=%q", gotID, gotText)
	}
}

func TestSubmitCommandWithoutSink(t *testing.T) {
	h := New(Options{})
	if err := h.SubmitCommand(context.Background(), 1, "noop"); err != nil {
		t.Fatalf("commands without a sink should be dropped, not fail: %v", err)
	}
}

func TestClose(t *testing.T) {
	h := New(Options{})
	_, ch, err := h.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	h.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if _, _, err := h.Subscribe(); err != ErrClosed {
		t.Fatalf("subscribe after close: %v", err)
	}
	h.Close()
}
