package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mcav/pkg/protocol"
)

// fakeSock records writes and optionally blocks them, standing in for a
// browser socket.
type fakeSock struct {
	mu        sync.Mutex
	msgs      [][]byte
	closed    bool
	closeCode websocket.StatusCode

	// block, when non-nil, stalls every Write until the channel closes or
	// the context expires.
	block chan struct{}
}

func (f *fakeSock) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, append([]byte(nil), p...))
	return nil
}

func (f *fakeSock) Close(code websocket.StatusCode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	return nil
}

func (f *fakeSock) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeSock) closedWith() (bool, websocket.StatusCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBroadcast_DeliversToAll(t *testing.T) {
	h := testHub(t)
	a, b := &fakeSock{}, &fakeSock{}
	h.Add(a)
	h.Add(b)

	h.Broadcast(context.Background(), protocol.Pong{Type: "pong"})

	for name, s := range map[string]*fakeSock{"a": a, "b": b} {
		if got := len(s.messages()); got != 1 {
			t.Errorf("observer %s received %d messages, want 1", name, got)
		}
	}
}

func TestBroadcast_ShedsSlowObserver(t *testing.T) {
	h := testHub(t)
	fast := &fakeSock{}
	slow := &fakeSock{block: make(chan struct{})}
	h.Add(fast)
	h.Add(slow)

	start := time.Now()
	h.Broadcast(context.Background(), protocol.Pong{Type: "pong"})
	elapsed := time.Since(start)

	if got := len(fast.messages()); got != 1 {
		t.Errorf("fast observer received %d messages, want 1", got)
	}
	if closed, code := slow.closedWith(); !closed || code != websocket.StatusPolicyViolation {
		t.Errorf("slow observer closed=%v code=%v, want policy violation close", closed, code)
	}
	if h.Len() != 1 {
		t.Errorf("hub has %d observers after shedding, want 1", h.Len())
	}
	// The whole fan-out must be bounded by one send timeout, not one per
	// client.
	if elapsed > sendTimeout+400*time.Millisecond {
		t.Errorf("broadcast took %v, want <= ~%v", elapsed, sendTimeout)
	}

	// Later broadcasts no longer touch the dead observer.
	h.Broadcast(context.Background(), protocol.Pong{Type: "pong"})
	if got := len(fast.messages()); got != 2 {
		t.Errorf("fast observer received %d messages, want 2", got)
	}
}

func TestHeartbeat_ClosesAfterTwoMissedPongs(t *testing.T) {
	h := testHub(t)
	s := &fakeSock{}
	h.Add(s)
	ctx := context.Background()

	h.pingAll(ctx) // ping sent, pending
	h.pingAll(ctx) // missed 1, pinged again
	if closed, _ := s.closedWith(); closed {
		t.Fatal("observer closed after a single missed pong")
	}

	h.pingAll(ctx) // missed 2: close with the heartbeat code
	if closed, code := s.closedWith(); !closed || code != protocol.CloseHeartbeatTimeout {
		t.Errorf("closed=%v code=%v, want close 4100", closed, code)
	}
	if h.Len() != 0 {
		t.Errorf("hub has %d observers, want 0", h.Len())
	}

	// A pong in between resets the debt.
	s2 := &fakeSock{}
	o2 := h.Add(s2)
	h.pingAll(ctx)
	h.NotePong(o2)
	h.pingAll(ctx)
	h.pingAll(ctx)
	if closed, _ := s2.closedWith(); closed {
		t.Error("observer closed despite answering pongs")
	}
}
