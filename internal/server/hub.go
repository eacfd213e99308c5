package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mcav/pkg/protocol"
)

const (
	// sendTimeout is the hard per-client budget for one fan-out send. A
	// browser that cannot take a frame within it is shed so it can never
	// stall the broadcast loop.
	sendTimeout = 500 * time.Millisecond

	// pingInterval is the browser heartbeat period.
	pingInterval = 15 * time.Second

	// maxMissedPongs closes the socket with the heartbeat-timeout code.
	maxMissedPongs = 2
)

// wsConn is the slice of *websocket.Conn the hub needs. Tests substitute
// blocking fakes to exercise the shedding path.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Observer is one connected browser. Writes are serialised through the
// observer's own mutex; the heartbeat state is only touched by the hub.
type Observer struct {
	sock wsConn

	mu          sync.Mutex
	pingPending bool
	missedPongs int
}

// send writes data with the fan-out timeout. The write mutex is taken
// after the deadline is armed so a stuck predecessor also counts against
// this send's budget.
func (o *Observer) send(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sock.Write(ctx, websocket.MessageText, data)
}

// SendJSON marshals v and sends it to this observer only.
func (o *Observer) SendJSON(ctx context.Context, v any) error {
	data, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	return o.send(ctx, data)
}

// Hub is the browser fan-out. Membership is guarded by one mutex; sends
// run concurrently so a slow observer only costs its own goroutine.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*Observer]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*Observer]struct{})}
}

// Add registers a browser socket and returns its observer handle.
func (h *Hub) Add(sock wsConn) *Observer {
	o := &Observer{sock: sock}
	h.mu.Lock()
	h.clients[o] = struct{}{}
	h.mu.Unlock()
	return o
}

// Remove unregisters an observer. Safe to call twice.
func (h *Hub) Remove(o *Observer) {
	h.mu.Lock()
	delete(h.clients, o)
	h.mu.Unlock()
}

// Len reports the number of connected browsers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// NotePong clears the heartbeat debt for an observer.
func (h *Hub) NotePong(o *Observer) {
	o.mu.Lock()
	o.pingPending = false
	o.missedPongs = 0
	o.mu.Unlock()
}

func (h *Hub) snapshot() []*Observer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Observer, 0, len(h.clients))
	for o := range h.clients {
		out = append(out, o)
	}
	return out
}

// Broadcast fans v out to every observer concurrently. Observers whose
// send fails or exceeds the timeout are closed and purged before the call
// returns; the total stall is bounded by one sendTimeout, not one per
// client.
func (h *Hub) Broadcast(ctx context.Context, v any) {
	data, err := protocol.Marshal(v)
	if err != nil {
		h.log.Error("broadcast marshal failed", "err", err)
		return
	}

	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	var (
		wg      sync.WaitGroup
		deadMu  sync.Mutex
		dead    []*Observer
	)
	for _, o := range clients {
		wg.Add(1)
		go func(o *Observer) {
			defer wg.Done()
			if err := o.send(ctx, data); err != nil {
				deadMu.Lock()
				dead = append(dead, o)
				deadMu.Unlock()
			}
		}(o)
	}
	wg.Wait()

	for _, o := range dead {
		h.log.Info("dropping slow browser observer")
		h.Remove(o)
		_ = o.sock.Close(websocket.StatusPolicyViolation, "send timeout")
	}
}

// Heartbeat pings every browser each interval and closes sockets that
// miss two consecutive pongs. Runs until ctx is cancelled.
func (h *Hub) Heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.pingAll(ctx)
		}
	}
}

func (h *Hub) pingAll(ctx context.Context) {
	for _, o := range h.snapshot() {
		if h.noteMissedPing(o) {
			h.log.Info("browser heartbeat timeout")
			h.Remove(o)
			_ = o.sock.Close(protocol.CloseHeartbeatTimeout, "heartbeat timeout")
			continue
		}
		if err := o.SendJSON(ctx, protocol.Ping{Type: "ping", TS: unixSeconds(time.Now())}); err != nil {
			h.Remove(o)
			_ = o.sock.Close(websocket.StatusGoingAway, "ping failed")
		}
	}
}

// noteMissedPing advances the heartbeat accounting for one tick and
// reports whether the observer exceeded the miss budget.
func (h *Hub) noteMissedPing(o *Observer) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pingPending {
		o.missedPongs++
		if o.missedPongs >= maxMissedPongs {
			return true
		}
	}
	o.pingPending = true
	return false
}
