// Package renderer maintains the downstream WebSocket to the Minecraft
// renderer plugin. The [Client] exposes the fire-and-forget frame path
// plus a request/response surface guarded by a circuit breaker; the
// [Supervisor] keeps the connection alive with polling and backoff.
package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/mcav/internal/resilience"
	"github.com/MrWong99/mcav/pkg/protocol"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 5 * time.Second
)

// ErrNotConnected is returned when an operation is attempted without a
// live renderer socket.
var ErrNotConnected = errors.New("renderer not connected")

// Client owns the single downstream socket. The frame path never blocks
// on the renderer: BatchUpdateFast serializes, sends, and on failure
// just marks the client disconnected for the supervisor to repair.
type Client struct {
	url  string
	zone string
	log  *slog.Logger

	breaker *resilience.CircuitBreaker

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	pending   map[string]chan protocol.RendererResponse
}

// NewClient creates a client for the renderer at url, publishing into
// the named zone. No connection is made until Connect.
func NewClient(url, zone string, log *slog.Logger) *Client {
	return &Client{
		url:  url,
		zone: zone,
		log:  log.With("component", "renderer"),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "renderer",
		}),
		pending: make(map[string]chan protocol.RendererResponse),
	}
}

// Zone returns the zone this client publishes into.
func (c *Client) Zone() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zone
}

// SetZone switches the publish zone.
func (c *Client) SetZone(zone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zone = zone
}

// Connected reports whether the socket is believed live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the renderer and starts the read loop. An existing
// socket is torn down first.
func (c *Client) Connect(ctx context.Context) error {
	c.teardown(websocket.StatusNormalClosure, "reconnecting")

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("renderer: dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20)

	readCtx, readCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancel = readCancel
	c.mu.Unlock()

	go c.readLoop(readCtx, conn)

	c.log.Info("renderer connected", "url", c.url, "zone", c.Zone())
	return nil
}

// Close tears the socket down for good.
func (c *Client) Close() error {
	c.teardown(websocket.StatusNormalClosure, "shutting down")
	return nil
}

func (c *Client) teardown(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.connected = false
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(code, reason)
	}
}

// markDisconnected flags the socket dead without closing it; the read
// loop and supervisor handle the rest.
func (c *Client) markDisconnected() {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()
	if was {
		c.log.Warn("renderer send failed, marking disconnected")
	}
}

// readLoop consumes inbound messages and routes request responses to
// their waiters. It exits when the socket dies.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.markDisconnected()
			return
		}

		var resp protocol.RendererResponse
		if err := json.Unmarshal(data, &resp); err != nil || resp.RequestID == "" {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		if ok {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

func (c *Client) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("renderer: marshal: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	ok := c.connected
	c.mu.Unlock()
	if !ok || conn == nil {
		return ErrNotConnected
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.markDisconnected()
		return fmt.Errorf("renderer: write: %w", err)
	}
	return nil
}

// BatchUpdateFast ships one frame downstream without awaiting an ack. A
// send failure marks the client disconnected and is reported to the
// caller, which is expected to just count it and move on.
func (c *Client) BatchUpdateFast(ctx context.Context, entities []protocol.Entity, particles []protocol.Particle, audio protocol.RendererAudio) error {
	return c.send(ctx, protocol.BatchUpdateFast{
		Type:      "batch_update_fast",
		Zone:      c.Zone(),
		Entities:  entities,
		Particles: particles,
		Audio:     audio,
	})
}

// SendVoice relays an opaque voice payload downstream, fire-and-forget.
func (c *Client) SendVoice(ctx context.Context, seq float64, data string) error {
	return c.send(ctx, protocol.RendererVoice{
		Type: "voice_data",
		Seq:  seq,
		Data: data,
	})
}

// Request performs one request/response round trip. Each request gets a
// fresh request_id and a hard timeout; the whole operation runs through
// the circuit breaker so a dead renderer fails fast after a few
// timeouts instead of stacking blocked admin commands.
func (c *Client) Request(ctx context.Context, req protocol.RendererRequest) (protocol.RendererResponse, error) {
	var resp protocol.RendererResponse
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.roundTrip(ctx, req)
		return err
	})
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req protocol.RendererRequest) (protocol.RendererResponse, error) {
	req.RequestID = uuid.NewString()

	ch := make(chan protocol.RendererResponse, 1)
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return protocol.RendererResponse{}, ErrNotConnected
	}
	c.pending[req.RequestID] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := c.send(reqCtx, req); err != nil {
		cleanup()
		return protocol.RendererResponse{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.RendererResponse{}, ErrNotConnected
		}
		if !resp.OK && resp.Error != "" {
			return resp, fmt.Errorf("renderer: %s: %s", req.Type, resp.Error)
		}
		return resp, nil
	case <-reqCtx.Done():
		cleanup()
		return protocol.RendererResponse{}, fmt.Errorf("renderer: %s: %w", req.Type, reqCtx.Err())
	}
}

// SetVisible shows or hides every entity in the zone.
func (c *Client) SetVisible(ctx context.Context, visible bool) error {
	_, err := c.Request(ctx, protocol.RendererRequest{
		Type:    "set_visible",
		Zone:    c.Zone(),
		Visible: &visible,
	})
	return err
}

// GetZones queries the renderer's zone catalogue.
func (c *Client) GetZones(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Request(ctx, protocol.RendererRequest{Type: "get_zones"})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// InitPool pre-spawns count entities in the zone.
func (c *Client) InitPool(ctx context.Context, zone string, count int) error {
	_, err := c.Request(ctx, protocol.RendererRequest{
		Type:  "init_pool",
		Zone:  zone,
		Count: count,
	})
	return err
}

// CleanupZone despawns everything in the zone.
func (c *Client) CleanupZone(ctx context.Context, zone string) error {
	_, err := c.Request(ctx, protocol.RendererRequest{
		Type: "cleanup_zone",
		Zone: zone,
	})
	return err
}

// Forward relays an allowlisted admin command downstream verbatim and
// returns the renderer's reply. The caller is responsible for the
// allowlist check.
func (c *Client) Forward(ctx context.Context, msgType string, payload json.RawMessage) (protocol.RendererResponse, error) {
	return c.Request(ctx, protocol.RendererRequest{
		Type:    msgType,
		Zone:    c.Zone(),
		Payload: payload,
	})
}
