package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mcav/internal/auth"
)

func TestClockOffset(t *testing.T) {
	now := 1_700_000_000.0

	tests := []struct {
		name           string
		t1, t2, t3, t4 float64
		wantOffset     float64
		wantOK         bool
	}{
		{
			// Symmetric 100 ms round trip, clocks 2 s apart.
			name: "clean measurement",
			t1:   now, t2: now + 2.05, t3: now + 2.05, t4: now + 0.1,
			wantOffset: 2.0, wantOK: true,
		},
		{
			name: "aligned clocks",
			t1:   now, t2: now + 0.05, t3: now + 0.05, t4: now + 0.1,
			wantOffset: 0, wantOK: true,
		},
		{
			name: "negative rtt rejected",
			t1:   now, t2: now, t3: now + 5, t4: now + 0.1,
			wantOK: false,
		},
		{
			name: "huge rtt rejected",
			t1:   now, t2: now + 20, t3: now + 20, t4: now + 40,
			wantOK: false,
		},
		{
			name: "dj clock off by more than an hour",
			t1:   now, t2: now + 7200, t3: now + 7200, t4: now + 0.1,
			wantOK: false,
		},
		{
			name: "zero timestamp rejected",
			t1:   now, t2: 0, t3: now, t4: now + 0.1,
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, ok := clockOffset(tt.t1, tt.t2, tt.t3, tt.t4)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if diff := offset - tt.wantOffset; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("offset = %v, want %v", offset, tt.wantOffset)
			}
		})
	}
}

func TestNewDJID(t *testing.T) {
	re := regexp.MustCompile(`^[a-z0-9]+-[0-9a-f]{8}$`)
	for _, name := range []string{"Alice", "DJ Cool-Cat!", "测试", ""} {
		id := newDJID(name)
		if !re.MatchString(id) {
			t.Errorf("newDJID(%q) = %q, want slug-hex8", name, id)
		}
	}
	if a, b := newDJID("Alice"), newDJID("Alice"); a == b {
		t.Error("ids for the same name must be unique")
	}
}

// ── socket-level fixtures ─────────────────────────────────────────────────────

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func dialWS(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func writeMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func answerClockSync(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()
	req := readMsg(t, ctx, conn)
	if req["type"] != "clock_sync_request" {
		t.Fatalf("expected clock_sync_request, got %v", req["type"])
	}
	now := unixNow()
	writeMsg(t, ctx, conn, map[string]any{
		"type":         "clock_sync_response",
		"dj_recv_time": now,
		"dj_send_time": now,
	})
}

func TestDJAuth_FullHandshake(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleDJ))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL(srv.URL))
	defer conn.CloseNow()

	writeMsg(t, ctx, conn, map[string]any{
		"type": "dj_auth", "dj_id": "alice", "dj_key": "", "dj_name": "Alice",
	})

	success := readMsg(t, ctx, conn)
	if success["type"] != "auth_success" || success["dj_id"] != "alice" {
		t.Fatalf("auth reply = %v", success)
	}
	if success["is_active"] != true {
		t.Error("first dj in should be active")
	}

	answerClockSync(t, ctx, conn)

	route := readMsg(t, ctx, conn)
	if route["type"] != "stream_route" {
		t.Fatalf("expected stream_route, got %v", route["type"])
	}
	if route["route_mode"] != "relay" {
		t.Errorf("route_mode = %v, want relay for a non-direct dj", route["route_mode"])
	}
	if route["reason"] != "auth" {
		t.Errorf("reason = %v, want auth", route["reason"])
	}

	// Heartbeat echo.
	ts := unixNow()
	writeMsg(t, ctx, conn, map[string]any{"type": "dj_heartbeat", "ts": ts})
	ack := readMsg(t, ctx, conn)
	if ack["type"] != "heartbeat_ack" {
		t.Fatalf("expected heartbeat_ack, got %v", ack["type"])
	}
	if ack["echo_ts"].(float64) != ts {
		t.Errorf("echo_ts = %v, want %v", ack["echo_ts"], ts)
	}

	// Sanitized audio frame lands on the connection.
	writeMsg(t, ctx, conn, map[string]any{
		"type": "dj_audio_frame", "seq": 1,
		"bands": []any{-1, 0.5, 2, "oops", 0.3},
		"peak":  100, "bpm": 500, "tempo_confidence": "oops", "beat_phase": 1.3,
	})
	c, ok := s.roster.Get("alice")
	if !ok {
		t.Fatal("alice missing from roster")
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().FrameCount == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio frame never processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f := c.Snapshot().Frame
	want := [5]float64{0, 0.5, 1, 0, 0.3}
	if f.Bands != want {
		t.Errorf("bands = %v, want %v", f.Bands, want)
	}
	if f.Peak != 5 || f.BPM != 300 || f.TempoConfidence != 0 || f.BeatPhase != 1 {
		t.Errorf("clamps = peak %v bpm %v conf %v phase %v", f.Peak, f.BPM, f.TempoConfidence, f.BeatPhase)
	}

	// Graceful shutdown empties the roster.
	writeMsg(t, ctx, conn, map[string]any{"type": "going_offline"})
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected close after going_offline")
	}
	deadline = time.Now().Add(2 * time.Second)
	for s.roster.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("roster not cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDJAuth_Duplicate(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleDJ))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := dialWS(t, ctx, wsURL(srv.URL))
	defer first.CloseNow()
	writeMsg(t, ctx, first, map[string]any{"type": "dj_auth", "dj_id": "alice", "dj_name": "Alice"})
	if m := readMsg(t, ctx, first); m["type"] != "auth_success" {
		t.Fatalf("first auth failed: %v", m)
	}

	second := dialWS(t, ctx, wsURL(srv.URL))
	defer second.CloseNow()
	writeMsg(t, ctx, second, map[string]any{"type": "dj_auth", "dj_id": "alice", "dj_name": "Imposter"})
	_, _, err := second.Read(ctx)
	if err == nil {
		t.Fatal("duplicate auth accepted")
	}
	if status := websocket.CloseStatus(err); status != 4005 {
		t.Errorf("close status = %v, want 4005", status)
	}
}

func TestDJAuth_RequiredCredentials(t *testing.T) {
	hash, err := auth.HashPassword("secret", "sha256")
	if err != nil {
		t.Fatal(err)
	}
	store := &auth.Store{
		DJs:         map[string]auth.DJRecord{"alice": {Name: "Alice", KeyHash: hash, Priority: 10}},
		VJOperators: map[string]auth.VJRecord{},
	}
	s := testServer(t)
	s.authStore = func() *auth.Store { return store }
	s.requireAuth = true

	srv := httptest.NewServer(http.HandlerFunc(s.HandleDJ))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Wrong key: auth_denied then close 4004.
	conn := dialWS(t, ctx, wsURL(srv.URL))
	writeMsg(t, ctx, conn, map[string]any{"type": "dj_auth", "dj_id": "alice", "dj_key": "wrong"})
	if m := readMsg(t, ctx, conn); m["type"] != "auth_denied" {
		t.Fatalf("expected auth_denied, got %v", m)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != 4004 {
		t.Errorf("close status = %v, want 4004", websocket.CloseStatus(err))
	}
	conn.CloseNow()

	// Right key admits.
	conn = dialWS(t, ctx, wsURL(srv.URL))
	defer conn.CloseNow()
	writeMsg(t, ctx, conn, map[string]any{"type": "dj_auth", "dj_id": "alice", "dj_key": "secret"})
	if m := readMsg(t, ctx, conn); m["type"] != "auth_success" {
		t.Fatalf("expected auth_success, got %v", m)
	}
	if c, ok := s.roster.Get("alice"); !ok || c.Priority != 10 {
		t.Error("admitted dj missing or without its configured priority")
	}
}

func TestCodeAuth_PendingApproval(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleDJ))
	t.Cleanup(srv.Close)

	code, err := s.codes.Generate(0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL(srv.URL))
	defer conn.CloseNow()

	writeMsg(t, ctx, conn, map[string]any{"type": "code_auth", "code": code.Code, "dj_name": "Guest"})
	pending := readMsg(t, ctx, conn)
	if pending["type"] != "auth_pending" {
		t.Fatalf("expected auth_pending, got %v", pending)
	}
	djID, _ := pending["dj_id"].(string)
	if djID == "" {
		t.Fatal("auth_pending without dj_id")
	}

	// Pending sockets answer pings while waiting.
	writeMsg(t, ctx, conn, map[string]any{"type": "ping"})
	if m := readMsg(t, ctx, conn); m["type"] != "pong" {
		t.Fatalf("expected pong while pending, got %v", m)
	}

	if s.pending.Approve(djID) == nil {
		t.Fatal("pending entry vanished")
	}
	if m := readMsg(t, ctx, conn); m["type"] != "auth_success" {
		t.Fatalf("expected auth_success after approval, got %v", m)
	}
	answerClockSync(t, ctx, conn)
	if m := readMsg(t, ctx, conn); m["type"] != "stream_route" {
		t.Fatalf("expected stream_route, got %v", m)
	}

	// The consumed code is single-use.
	second := dialWS(t, ctx, wsURL(srv.URL))
	defer second.CloseNow()
	writeMsg(t, ctx, second, map[string]any{"type": "code_auth", "code": code.Code, "dj_name": "B"})
	if m := readMsg(t, ctx, second); m["type"] != "auth_error" {
		t.Fatalf("expected auth_error on reuse, got %v", m)
	}
	if _, _, err := second.Read(ctx); websocket.CloseStatus(err) != 4004 {
		t.Errorf("close status = %v, want 4004", websocket.CloseStatus(err))
	}
}

func TestCodeAuth_Denied(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleDJ))
	t.Cleanup(srv.Close)

	code, err := s.codes.Generate(0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL(srv.URL))
	defer conn.CloseNow()

	writeMsg(t, ctx, conn, map[string]any{"type": "code_auth", "code": code.Code, "dj_name": "Guest"})
	pending := readMsg(t, ctx, conn)
	djID, _ := pending["dj_id"].(string)

	if s.pending.Deny(djID) == nil {
		t.Fatal("pending entry vanished")
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != 4006 {
		t.Errorf("close status = %v, want 4006", websocket.CloseStatus(err))
	}
}

func TestDJAuth_FirstFrameMustAuthenticate(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleDJ))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL(srv.URL))
	defer conn.CloseNow()

	writeMsg(t, ctx, conn, map[string]any{"type": "dj_audio_frame"})
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != 4003 {
		t.Errorf("close status = %v, want 4003", websocket.CloseStatus(err))
	}
}
