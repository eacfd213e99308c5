package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/mcav/internal/auth"
	"github.com/MrWong99/mcav/internal/dj"
	"github.com/MrWong99/mcav/internal/sanitize"
	"github.com/MrWong99/mcav/pkg/protocol"
)

const (
	// authDeadline is the window a freshly opened DJ socket has to send
	// its first authentication frame.
	authDeadline = 10 * time.Second

	// clockSyncDeadline bounds the four-timestamp exchange. On expiry the
	// connection continues with an uncorrected clock.
	clockSyncDeadline = 5 * time.Second

	// djReadLimit caps inbound DJ frames at 64 KiB.
	djReadLimit = 64 << 10

	// defaultPriority is assigned to code-authenticated DJs and, when
	// authentication is optional, to unverified credentialed ones.
	defaultPriority = 100
)

// clockSyncAccept bounds: either one-way delta must be under an hour and
// the round trip non-negative and under 30 s, otherwise the measurement
// is discarded.
const (
	clockSyncMaxDelta = 3600.0
	clockSyncMaxRTT   = 30.0
)

// djReader pumps a socket's frames into a channel so phase deadlines can
// be implemented with select instead of read contexts, which would tear
// the connection down on expiry.
type djReader struct {
	frames chan []byte
	err    chan error
}

func startDJReader(ctx context.Context, sock *websocket.Conn) *djReader {
	r := &djReader{
		frames: make(chan []byte),
		err:    make(chan error, 1),
	}
	go func() {
		for {
			typ, data, err := sock.Read(ctx)
			if err != nil {
				r.err <- err
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			select {
			case r.frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return r
}

// errReadTimeout distinguishes a phase deadline from a broken socket.
var errReadTimeout = errors.New("server: read deadline elapsed")

// next returns the next frame, waiting at most timeout (forever when
// timeout <= 0).
func (r *djReader) next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case data := <-r.frames:
		return data, nil
	case err := <-r.err:
		return nil, err
	case <-deadline:
		return nil, errReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleDJ upgrades and serves one DJ WebSocket connection.
func (s *Server) HandleDJ(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Debug("dj accept failed", "err", err)
		return
	}
	sock.SetReadLimit(djReadLimit)

	s.serveDJ(r.Context(), sock)
}

func (s *Server) serveDJ(ctx context.Context, sock *websocket.Conn) {
	reader := startDJReader(ctx, sock)

	data, err := reader.next(ctx, authDeadline)
	if err != nil {
		if errors.Is(err, errReadTimeout) {
			_ = sock.Close(protocol.CloseAuthTimeout, "authentication timeout")
		}
		return
	}

	switch protocol.MessageType(data) {
	case "dj_auth":
		var req protocol.DJAuth
		if err := json.Unmarshal(data, &req); err != nil || req.DJID == "" {
			_ = sock.Close(protocol.CloseInvalidJSON, "malformed auth")
			return
		}
		s.handleDJAuth(ctx, sock, reader, &req)
	case "code_auth":
		var req protocol.CodeAuth
		if err := json.Unmarshal(data, &req); err != nil || req.Code == "" {
			_ = sock.Close(protocol.CloseInvalidJSON, "malformed auth")
			return
		}
		s.handleCodeAuth(ctx, sock, reader, &req)
	case "":
		_ = sock.Close(protocol.CloseInvalidJSON, "not a json object")
	default:
		_ = sock.Close(protocol.CloseExpectedAuth, "expected authentication")
	}
}

// handleDJAuth admits a credentialed DJ directly to the roster.
func (s *Server) handleDJAuth(ctx context.Context, sock *websocket.Conn, reader *djReader, req *protocol.DJAuth) {
	name := req.DJName
	priority := defaultPriority

	store := s.currentStore()
	verified := false
	if store != nil {
		if rec, ok := store.VerifyDJ(req.DJID, req.DJKey); ok {
			verified = true
			priority = rec.Priority
			if name == "" {
				name = rec.Name
			}
		}
	}
	if !verified && s.requireAuth {
		s.metrics.RecordDJConnection(ctx, "dj_auth", "denied")
		s.writeJSON(ctx, sock, protocol.AuthDenied{Type: "auth_denied", Message: "Authentication failed"})
		_ = sock.Close(protocol.CloseAuthFailed, "authentication failed")
		return
	}
	if name == "" {
		name = req.DJID
	}

	c := dj.NewConn(req.DJID, name, priority, req.DirectMode.Bool(), sock)
	if err := s.roster.Add(c); err != nil {
		s.metrics.RecordDJConnection(ctx, "dj_auth", "duplicate")
		_ = sock.Close(protocol.CloseDuplicate, "already connected")
		return
	}

	s.metrics.RecordDJConnection(ctx, "dj_auth", "ok")
	s.runDJ(ctx, c, reader)
}

// handleCodeAuth validates a connect code and parks the applicant in the
// pending queue until an operator decides. While pending, the socket
// answers only pings.
func (s *Server) handleCodeAuth(ctx context.Context, sock *websocket.Conn, reader *djReader, req *protocol.CodeAuth) {
	if err := s.codes.ValidateAndConsume(req.Code); err != nil {
		s.metrics.RecordDJConnection(ctx, "code_auth", "invalid_code")
		s.writeJSON(ctx, sock, protocol.ErrorMessage{Type: "auth_error", Error: "Invalid connect code"})
		_ = sock.Close(protocol.CloseAuthFailed, "invalid connect code")
		return
	}

	name := req.DJName
	if name == "" {
		name = "DJ"
	}
	id := newDJID(name)

	p, err := s.pending.Add(id, name, req.DirectMode.Bool(), defaultPriority, req.Code, sock)
	if err != nil {
		_ = sock.Close(protocol.CloseDuplicate, "already connected")
		return
	}

	s.writeJSON(ctx, sock, protocol.AuthPending{
		Type:    "auth_pending",
		Message: "Waiting for operator approval",
		DJID:    id,
	})
	s.hub.Broadcast(ctx, protocol.DJPending{
		Type: "dj_pending",
		PendingEntry: protocol.PendingEntry{
			DJID:         id,
			DJName:       name,
			DirectMode:   p.DirectMode,
			WaitingSince: unixSeconds(p.WaitingSince),
		},
	})

	for {
		select {
		case v := <-p.Decision():
			if v == dj.VerdictDenied {
				s.metrics.RecordDJConnection(ctx, "code_auth", "denied")
				_ = sock.Close(protocol.CloseDenied, "connection denied by operator")
				return
			}
			c := dj.NewConn(id, name, p.Priority, p.DirectMode, sock)
			if err := s.roster.Add(c); err != nil {
				_ = sock.Close(protocol.CloseDuplicate, "already connected")
				return
			}
			s.metrics.RecordDJConnection(ctx, "code_auth", "ok")
			s.hub.Broadcast(ctx, protocol.DJApproved{Type: "dj_approved", DJID: id, DJName: name})
			s.runDJ(ctx, c, reader)
			return

		case data := <-reader.frames:
			if protocol.MessageType(data) == "ping" {
				s.writeJSON(ctx, sock, protocol.Pong{Type: "pong"})
			}

		case <-reader.err:
			// Applicant gave up while waiting.
			s.pending.Remove(id)
			s.hub.Broadcast(ctx, protocol.DJDenied{Type: "dj_denied", DJID: id, Reason: "disconnected"})
			return

		case <-ctx.Done():
			return
		}
	}
}

// runDJ is the shared post-admission path: handshake, clock sync, stream
// route, then the steady-state receive loop. It owns roster cleanup.
func (s *Server) runDJ(ctx context.Context, c *dj.Conn, reader *djReader) {
	s.stats.djConnects.Add(1)
	s.metrics.ConnectedDJs.Add(ctx, 1)
	s.log.Info("dj connected", "dj_id", c.ID, "dj_name", c.Name, "direct_mode", c.DirectMode)

	defer s.cleanupDJ(ctx, c)

	active := s.roster.ActiveID() == c.ID
	success := protocol.AuthSuccess{
		Type:     "auth_success",
		DJID:     c.ID,
		DJName:   c.Name,
		IsActive: active,
	}
	s.viz.mu.Lock()
	success.CurrentPattern = s.viz.engine.CurrentName()
	success.PatternConfig = s.viz.cfg.Wire()
	zone := s.viz.zone
	count := s.viz.cfg.EntityCount
	s.viz.mu.Unlock()
	if c.DirectMode {
		success.MinecraftHost = s.rendererHost
		success.MinecraftPort = s.rendererPort
		success.Zone = zone
		success.EntityCount = count
	}
	s.sendToDJ(ctx, c, success)

	s.broadcastRoster(ctx)
	s.clockSync(ctx, c, reader)
	s.sendStreamRoute(ctx, c, "auth")

	for {
		data, err := reader.next(ctx, 0)
		if err != nil {
			return
		}
		if done := s.handleSteadyMessage(ctx, c, data); done {
			_ = c.Sock.Close(websocket.StatusNormalClosure, "going offline")
			return
		}
	}
}

// cleanupDJ removes a departed DJ, hands the active slot over when
// needed, and mirrors the new roster to operators.
func (s *Server) cleanupDJ(ctx context.Context, c *dj.Conn) {
	removed, wasActive := s.roster.Remove(c.ID)
	if removed == nil {
		return
	}
	s.stats.djDisconnects.Add(1)
	s.metrics.ConnectedDJs.Add(ctx, -1)
	s.log.Info("dj disconnected", "dj_id", c.ID, "was_active", wasActive)

	if wasActive {
		if next := s.roster.Active(); next != nil {
			s.log.Info("active dj auto-switched", "dj_id", next.ID)
			s.sendToDJ(ctx, next, protocol.StatusUpdate{Type: "status_update", IsActive: true})
		}
		s.broadcastStreamRoutes(ctx, "active_dj_changed")
	}
	s.broadcastRoster(ctx)
}

// clockSync runs the NTP-style four-timestamp exchange. Interleaved
// steady-state messages arriving during the wait are dispatched normally
// instead of being dropped. Any failure leaves the connection with an
// uncorrected clock.
func (s *Server) clockSync(ctx context.Context, c *dj.Conn, reader *djReader) {
	t1 := unixSeconds(time.Now())
	s.sendToDJ(ctx, c, protocol.ClockSyncRequest{Type: "clock_sync_request", ServerTime: t1})

	deadline := time.Now().Add(clockSyncDeadline)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.SetClockSync(0, false)
			return
		}
		data, err := reader.next(ctx, remaining)
		if err != nil {
			c.SetClockSync(0, false)
			return
		}
		if protocol.MessageType(data) != "clock_sync_response" {
			s.handleSteadyMessage(ctx, c, data)
			continue
		}

		var resp protocol.ClockSyncResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.SetClockSync(0, false)
			return
		}
		t4 := unixSeconds(time.Now())
		offset, ok := clockOffset(t1, resp.DJRecvTime.Float(), resp.DJSendTime.Float(), t4)
		c.SetClockSync(offset, ok)
		if !ok {
			s.log.Debug("clock sync rejected", "dj_id", c.ID)
		}
		return
	}
}

// clockOffset computes the NTP offset from the four timestamps and
// reports whether the measurement is plausible.
func clockOffset(t1, t2, t3, t4 float64) (float64, bool) {
	for _, v := range []float64{t1, t2, t3, t4} {
		if !finite(v) || v <= 0 {
			return 0, false
		}
	}
	rtt := (t4 - t1) - (t3 - t2)
	if math.Abs(t2-t1) >= clockSyncMaxDelta || math.Abs(t3-t4) >= clockSyncMaxDelta {
		return 0, false
	}
	if rtt < 0 || rtt > clockSyncMaxRTT {
		return 0, false
	}
	return ((t2 - t1) + (t3 - t4)) / 2, true
}

// handleSteadyMessage dispatches one post-admission frame. Returns true
// when the DJ announced a graceful shutdown.
func (s *Server) handleSteadyMessage(ctx context.Context, c *dj.Conn, data []byte) bool {
	switch protocol.MessageType(data) {
	case "dj_audio_frame":
		if !c.AllowFrame() {
			s.metrics.RecordDrop(ctx, "rate_limit")
			return false
		}
		var raw protocol.DJAudioFrame
		if err := json.Unmarshal(data, &raw); err != nil {
			return false
		}
		c.UpdateFrame(sanitize.Frame(&raw), time.Now())
		s.metrics.RecordFrame(ctx, c.ID)

	case "dj_heartbeat":
		var hb protocol.DJHeartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			return false
		}
		var mc *bool
		if hb.MCConnected != nil {
			v := hb.MCConnected.Bool()
			mc = &v
		}
		now := time.Now()
		c.ObserveHeartbeat(hb.TS.Float(), mc, now)
		s.sendToDJ(ctx, c, protocol.HeartbeatAck{
			Type:       "heartbeat_ack",
			ServerTime: unixSeconds(now),
			EchoTS:     hb.TS.Float(),
		})

	case "voice_audio":
		var v protocol.VoiceAudio
		if err := json.Unmarshal(data, &v); err != nil {
			return false
		}
		c.SetVoiceStreaming(true)
		if s.mc != nil && s.roster.ActiveID() == c.ID {
			if err := s.mc.SendVoice(ctx, v.Seq.Float(), v.Data); err != nil {
				s.log.Debug("voice relay failed", "err", err)
			}
		}

	case "going_offline":
		return true

	case "ping":
		s.sendToDJ(ctx, c, protocol.Pong{Type: "pong"})

	case "clock_sync_response":
		// Late reply after the sync deadline; nothing to correlate.

	default:
		s.log.Debug("unhandled dj message", "dj_id", c.ID, "type", protocol.MessageType(data))
	}
	return false
}

// currentStore resolves the hot-reloadable credential store.
func (s *Server) currentStore() *auth.Store {
	if s.authStore == nil {
		return nil
	}
	return s.authStore()
}

// writeJSON is the pre-admission write helper, before a dj.Conn exists.
func (s *Server) writeJSON(ctx context.Context, sock *websocket.Conn, v any) {
	data, err := protocol.Marshal(v)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, djSendTimeout)
	defer cancel()
	_ = sock.Write(wctx, websocket.MessageText, data)
}

// newDJID derives a unique id for a code-authenticated DJ from its
// display name.
func newDJID(name string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, name)
	if slug == "" {
		slug = "dj"
	}
	return slug + "-" + uuid.NewString()[:8]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
