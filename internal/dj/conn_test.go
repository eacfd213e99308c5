package dj

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/mcav/pkg/audio"
)

func TestConn_RateLimiterDropsSurplus(t *testing.T) {
	c := newTestConn("alice", 10)

	allowed := 0
	for i := 0; i < 500; i++ {
		if c.AllowFrame() {
			allowed++
		}
	}
	// The bucket starts full at 120; without waiting only the burst (plus
	// a trickle of refill) passes.
	if allowed < frameBurst || allowed > frameBurst+5 {
		t.Errorf("allowed = %d, want ≈%d", allowed, frameBurst)
	}
}

func TestConn_UpdateFrameFPS(t *testing.T) {
	c := newTestConn("alice", 10)
	base := time.Now()

	// 90 frames over 1.5 s: only the last second's worth counts.
	for i := 0; i < 90; i++ {
		c.UpdateFrame(audio.Frame{}, base.Add(time.Duration(i)*time.Second*3/180))
	}
	m := c.Snapshot()
	if m.FrameCount != 90 {
		t.Errorf("frame count = %d, want 90", m.FrameCount)
	}
	if m.FPS < 55 || m.FPS > 65 {
		t.Errorf("fps = %v, want ≈60", m.FPS)
	}
}

func TestConn_PipelineLatencyEMA(t *testing.T) {
	c := newTestConn("alice", 10)
	now := time.Now()

	// Producer timestamp 100 ms in the past; first sample lands at
	// EMA(0, 100, 0.2) = 20.
	f := audio.Frame{TS: nowUnix(now) - 0.1}
	c.UpdateFrame(f, now)

	m := c.Snapshot()
	if m.PipelineMs < 19 || m.PipelineMs > 21 {
		t.Errorf("pipeline latency = %v, want ≈20", m.PipelineMs)
	}
	// Display latency falls back to pipeline when no RTT is known.
	if m.LatencyMs != m.PipelineMs {
		t.Errorf("latency = %v, want pipeline fallback %v", m.LatencyMs, m.PipelineMs)
	}
}

func TestConn_ClockOffsetCorrection(t *testing.T) {
	c := newTestConn("alice", 10)
	now := time.Now()

	// DJ clock runs 10 s ahead. Without correction the latency would be
	// clamped to 0; with the offset applied it measures the true 100 ms.
	c.SetClockSync(10.0, true)
	f := audio.Frame{TS: nowUnix(now) + 10.0 - 0.1}
	c.UpdateFrame(f, now)

	m := c.Snapshot()
	if m.PipelineMs < 19 || m.PipelineMs > 21 {
		t.Errorf("pipeline latency = %v, want ≈20", m.PipelineMs)
	}
	if !m.ClockSyncDone {
		t.Error("clock sync flag not set")
	}
}

func TestConn_HeartbeatRTT(t *testing.T) {
	c := newTestConn("alice", 10)
	now := time.Now()

	mc := true
	c.ObserveHeartbeat(nowUnix(now)-0.05, &mc, now)

	m := c.Snapshot()
	// EMA(0, 50, 0.2) = 10.
	if m.NetworkRTTMs < 9 || m.NetworkRTTMs > 11 {
		t.Errorf("rtt = %v, want ≈10", m.NetworkRTTMs)
	}
	if m.LatencyMs != m.NetworkRTTMs {
		t.Error("display latency should prefer network RTT")
	}
	if !m.MCConnected {
		t.Error("mc_connected not recorded")
	}
	if m.LastHeartbeat != now {
		t.Error("last heartbeat not recorded")
	}
}

func TestConn_HeartbeatIgnoresBadTimestamps(t *testing.T) {
	c := newTestConn("alice", 10)
	now := time.Now()

	for _, ts := range []float64{math.NaN(), math.Inf(1), 0, -5} {
		c.ObserveHeartbeat(ts, nil, now)
	}
	if m := c.Snapshot(); m.NetworkRTTMs != 0 {
		t.Errorf("rtt = %v, want untouched 0", m.NetworkRTTMs)
	}
}

func TestConn_LatencyClamped(t *testing.T) {
	c := newTestConn("alice", 10)
	now := time.Now()

	// Timestamp two hours in the past: raw latency far beyond the clamp.
	c.ObserveHeartbeat(nowUnix(now)-7200, nil, now)
	m := c.Snapshot()
	if m.NetworkRTTMs > audio.MaxLatencyMs {
		t.Errorf("rtt = %v exceeds clamp", m.NetworkRTTMs)
	}
}

func TestPendingQueue_Lifecycle(t *testing.T) {
	q := NewPendingQueue()

	p, err := q.Add("alice", "Alice", true, 50, "BEAT-7K3M", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Add("alice", "Alice", true, 50, "BEAT-7K3M", nil); err == nil {
		t.Error("duplicate pending id should fail")
	}
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1", q.Len())
	}

	got := q.Approve("alice")
	if got != p {
		t.Fatal("Approve returned wrong entry")
	}
	select {
	case v := <-p.Decision():
		if v != VerdictApproved {
			t.Errorf("verdict = %v, want approved", v)
		}
	default:
		t.Fatal("no verdict delivered")
	}
	if q.Len() != 0 {
		t.Errorf("len after approve = %d, want 0", q.Len())
	}
	if q.Approve("alice") != nil {
		t.Error("approving absent id should return nil")
	}
}

func TestPendingQueue_DenyAndRemove(t *testing.T) {
	q := NewPendingQueue()
	p, _ := q.Add("bob", "Bob", false, 50, "DROP-2ABC", nil)

	q.Deny("bob")
	if v := <-p.Decision(); v != VerdictDenied {
		t.Errorf("verdict = %v, want denied", v)
	}

	p2, _ := q.Add("carol", "Carol", false, 50, "WAVE-9XYZ", nil)
	if q.Remove("carol") != p2 {
		t.Error("Remove returned wrong entry")
	}
	select {
	case <-p2.Decision():
		t.Error("Remove should not deliver a verdict")
	default:
	}
}

func TestPendingQueue_ListOrder(t *testing.T) {
	q := NewPendingQueue()
	q.Add("a", "A", false, 0, "", nil)
	q.Add("b", "B", false, 0, "", nil)
	q.Add("c", "C", false, 0, "", nil)
	q.Remove("b")

	list := q.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("list order wrong: %v", list)
	}
}
