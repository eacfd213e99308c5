// Package dj holds the per-DJ connection state, the roster with its
// active-DJ selector, and the pending-approval queue.
package dj

import (
	"math"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/MrWong99/mcav/pkg/audio"
)

// Rate limit for inbound audio frames: bucket capacity 120 tokens,
// refilled at 120 tokens/s, one token per frame. Surplus frames are
// dropped silently.
const (
	frameRateLimit = rate.Limit(120)
	frameBurst     = 120
)

// latencyAlpha is the EMA smoothing factor for both latency metrics.
const latencyAlpha = 0.2

// Conn is the server-side state for one admitted DJ. The socket is owned
// by the connection's handler goroutine until the DJ leaves the roster;
// the broadcast loop only reads snapshots taken under the internal mutex.
type Conn struct {
	ID         string
	Name       string
	Priority   int
	DirectMode bool
	Sock       *websocket.Conn

	ConnectedAt time.Time

	limiter *rate.Limiter

	mu             sync.Mutex
	frame          audio.Frame
	frameCount     int64
	arrivals       []time.Time
	networkRTTMs   float64
	pipelineMs     float64
	clockOffset    float64 // seconds, DJ clock minus server clock
	clockSyncDone  bool
	lastHeartbeat  time.Time
	mcConnected    bool
	voiceStreaming bool
	phaseAssistAt  time.Time
}

// NewConn creates the state record for a freshly admitted DJ.
func NewConn(id, name string, priority int, directMode bool, sock *websocket.Conn) *Conn {
	return &Conn{
		ID:          id,
		Name:        name,
		Priority:    priority,
		DirectMode:  directMode,
		Sock:        sock,
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(frameRateLimit, frameBurst),
	}
}

// AllowFrame consumes one rate-limit token. A false return means the
// frame must be dropped without notification.
func (c *Conn) AllowFrame() bool {
	return c.limiter.Allow()
}

// UpdateFrame stores a sanitized frame, advances the FPS sampling ring,
// and refreshes the pipeline-latency EMA when the frame carries a
// producer timestamp.
func (c *Conn) UpdateFrame(f audio.Frame, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frame = f
	c.frameCount++

	// FPS ring: arrival times over the last second.
	c.arrivals = append(c.arrivals, now)
	cutoff := now.Add(-time.Second)
	for len(c.arrivals) > 0 && c.arrivals[0].Before(cutoff) {
		c.arrivals = c.arrivals[1:]
	}

	if f.TS > 0 {
		sent := f.TS
		if c.clockSyncDone {
			sent -= c.clockOffset
		}
		lat := audio.ClampLatency((nowUnix(now) - sent) * 1000)
		c.pipelineMs = audio.EMA(c.pipelineMs, lat, latencyAlpha)
	}
}

// ObserveHeartbeat refreshes liveness and the network-RTT EMA from a
// heartbeat frame. ts is the DJ's send time in Unix seconds; mc, when
// non-nil, updates the DJ's reported downstream renderer health.
func (c *Conn) ObserveHeartbeat(ts float64, mc *bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastHeartbeat = now
	if mc != nil {
		c.mcConnected = *mc
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts <= 0 {
		return
	}
	sent := ts - c.clockOffset
	rtt := audio.ClampLatency((nowUnix(now) - sent) * 1000)
	c.networkRTTMs = audio.EMA(c.networkRTTMs, rtt, latencyAlpha)
}

// SetClockSync records the measured clock offset. ok=false leaves the
// offset at zero and marks the sync as failed; latency math then falls
// back to uncorrected timestamps.
func (c *Conn) SetClockSync(offset float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.clockOffset = offset
	} else {
		c.clockOffset = 0
	}
	c.clockSyncDone = ok
}

// SetVoiceStreaming flags whether this DJ is currently sending voice
// frames.
func (c *Conn) SetVoiceStreaming(on bool) {
	c.mu.Lock()
	c.voiceStreaming = on
	c.mu.Unlock()
}

// PhaseAssistAt returns the time of the last fabricated beat for this DJ.
func (c *Conn) PhaseAssistAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phaseAssistAt
}

// MarkPhaseAssist records a fabricated beat at time now.
func (c *Conn) MarkPhaseAssist(now time.Time) {
	c.mu.Lock()
	c.phaseAssistAt = now
	c.mu.Unlock()
}

// Metrics is a coherent snapshot of a connection's mutable fields.
type Metrics struct {
	Frame          audio.Frame
	FrameCount     int64
	FPS            float64
	NetworkRTTMs   float64
	PipelineMs     float64
	LatencyMs      float64
	ClockSyncDone  bool
	MCConnected    bool
	VoiceStreaming bool
	LastHeartbeat  time.Time
}

// Snapshot returns the connection's current metrics as one consistent
// tuple. The display latency prefers the heartbeat RTT and falls back to
// the pipeline measurement.
func (c *Conn) Snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Frame:          c.frame,
		FrameCount:     c.frameCount,
		FPS:            float64(len(c.arrivals)),
		NetworkRTTMs:   c.networkRTTMs,
		PipelineMs:     c.pipelineMs,
		ClockSyncDone:  c.clockSyncDone,
		MCConnected:    c.mcConnected,
		VoiceStreaming: c.voiceStreaming,
		LastHeartbeat:  c.lastHeartbeat,
	}
	if m.NetworkRTTMs > 0 {
		m.LatencyMs = m.NetworkRTTMs
	} else {
		m.LatencyMs = m.PipelineMs
	}
	return m
}

func nowUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
