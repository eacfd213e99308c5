package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/mcav/internal/pattern"
	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// fallbackDecay is applied to each band and the peak every tick while no
// DJ is active, so the visualization fades out instead of cutting off.
const fallbackDecay = 0.95

// vizState is the broadcast loop's mutable visualization world: the
// pattern engine, tuning config, per-band sensitivity, zone, and the
// frozen-frame store. Control-plane handlers mutate it under the mutex;
// the loop snapshots it once per tick so every frame observes a coherent
// config.
type vizState struct {
	mu          sync.Mutex
	engine      *pattern.Engine
	cfg         pattern.Config
	sensitivity [audio.NumBands]float64
	preset      string
	zone        string

	// lastEntities is the most recent non-blackout frame; freeze replays
	// it verbatim.
	lastEntities []protocol.Entity
	frame        int64

	fallbackBands [audio.NumBands]float64
	fallbackPeak  float64
}

func newVizState(patternName string, cfg pattern.Config, preset audio.Preset, zone string) *vizState {
	return &vizState{
		engine:      pattern.NewEngine(patternName),
		cfg:         cfg,
		sensitivity: preset.Sensitivity,
		preset:      preset.Name,
		zone:        zone,
	}
}

// zoneAndCount returns the current zone and entity count as one snapshot.
func (v *vizState) zoneAndCount() (string, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zone, v.cfg.EntityCount
}

// storeFallback remembers the latest live audio so the fallback can decay
// from it after the active DJ leaves. Must be called with v.mu held.
func (v *vizState) storeFallbackLocked(bands [audio.NumBands]float64, peak float64) {
	v.fallbackBands = bands
	v.fallbackPeak = peak
}

// decayFallbackLocked fades the remembered audio by one tick and returns
// the result. Must be called with v.mu held.
func (v *vizState) decayFallbackLocked() ([audio.NumBands]float64, float64) {
	for i := range v.fallbackBands {
		v.fallbackBands[i] *= fallbackDecay
	}
	v.fallbackPeak *= fallbackDecay
	return v.fallbackBands, v.fallbackPeak
}

// stats holds the monotonic server counters surfaced in health snapshots
// and the periodic health log.
type stats struct {
	startedAt time.Time

	djConnects         atomic.Int64
	djDisconnects      atomic.Int64
	browserConnects    atomic.Int64
	browserDisconnects atomic.Int64
	mcReconnects       atomic.Int64
	framesProcessed    atomic.Int64

	profMu sync.Mutex
	prof   protocol.FrameProfile
}

// profileAlpha smooths the per-tick timing samples.
const profileAlpha = 0.1

// observeFrame folds one tick's timing breakdown into the smoothed
// profile.
func (s *stats) observeFrame(calc, rend, bcast, total time.Duration, entities int) {
	s.profMu.Lock()
	defer s.profMu.Unlock()

	if s.prof.TotalMs == 0 {
		s.prof = protocol.FrameProfile{
			CalcMs:      calc.Seconds() * 1000,
			RendererMs:  rend.Seconds() * 1000,
			BroadcastMs: bcast.Seconds() * 1000,
			TotalMs:     total.Seconds() * 1000,
			Entities:    entities,
		}
		return
	}
	s.prof.CalcMs += profileAlpha * (calc.Seconds()*1000 - s.prof.CalcMs)
	s.prof.RendererMs += profileAlpha * (rend.Seconds()*1000 - s.prof.RendererMs)
	s.prof.BroadcastMs += profileAlpha * (bcast.Seconds()*1000 - s.prof.BroadcastMs)
	s.prof.TotalMs += profileAlpha * (total.Seconds()*1000 - s.prof.TotalMs)
	s.prof.Entities = entities
}

func (s *stats) frameProfile() protocol.FrameProfile {
	s.profMu.Lock()
	defer s.profMu.Unlock()
	return s.prof
}

func newStats() *stats {
	return &stats{startedAt: time.Now()}
}

// healthStats assembles the counters snapshot embedded in vj_state and
// served on /health.
func (s *Server) healthStats() protocol.HealthStats {
	return protocol.HealthStats{
		UptimeSeconds:      time.Since(s.stats.startedAt).Seconds(),
		CurrentDJs:         s.roster.Len(),
		DJConnects:         s.stats.djConnects.Load(),
		DJDisconnects:      s.stats.djDisconnects.Load(),
		CurrentBrowsers:    s.hub.Len(),
		BrowserConnects:    s.stats.browserConnects.Load(),
		BrowserDisconnects: s.stats.browserDisconnects.Load(),
		MCConnected:        s.mc != nil && s.mc.Connected(),
		MCReconnectCount:   s.stats.mcReconnects.Load(),
		FramesProcessed:    s.stats.framesProcessed.Load(),
		FrameProfile:       s.stats.frameProfile(),
	}
}

// HealthSnapshot feeds the /health endpoint.
func (s *Server) HealthSnapshot() any {
	return s.healthStats()
}

// rosterEntries builds the admin-panel roster view in queue order.
func (s *Server) rosterEntries() []protocol.RosterEntry {
	activeID := s.roster.ActiveID()
	conns := s.roster.List()
	out := make([]protocol.RosterEntry, 0, len(conns))
	for _, c := range conns {
		m := c.Snapshot()
		out = append(out, protocol.RosterEntry{
			DJID:           c.ID,
			DJName:         c.Name,
			Priority:       c.Priority,
			IsActive:       c.ID == activeID,
			DirectMode:     c.DirectMode,
			MCConnected:    m.MCConnected,
			VoiceStreaming: m.VoiceStreaming,
			LatencyMs:      m.LatencyMs,
			PingMs:         m.NetworkRTTMs,
			PipelineMs:     m.PipelineMs,
			FPS:            m.FPS,
			Frames:         m.FrameCount,
			ConnectedAt:    unixSeconds(c.ConnectedAt),
		})
	}
	return out
}

// pendingEntries lists the approval queue in arrival order.
func (s *Server) pendingEntries() []protocol.PendingEntry {
	waiting := s.pending.List()
	out := make([]protocol.PendingEntry, 0, len(waiting))
	for _, p := range waiting {
		out = append(out, protocol.PendingEntry{
			DJID:         p.ID,
			DJName:       p.Name,
			DirectMode:   p.DirectMode,
			WaitingSince: unixSeconds(p.WaitingSince),
		})
	}
	return out
}

// vjState answers get_state with the full control-plane snapshot.
func (s *Server) vjState() protocol.VJState {
	s.viz.mu.Lock()
	current := s.viz.engine.CurrentName()
	cfg := s.viz.cfg
	zone := s.viz.zone
	s.viz.mu.Unlock()

	var profiles json.RawMessage = []byte("{}")
	if s.banners != nil {
		if b, err := json.Marshal(s.banners.Summaries()); err == nil {
			profiles = b
		}
	}

	return protocol.VJState{
		Type:               "vj_state",
		Patterns:           pattern.List(),
		CurrentPattern:     current,
		PatternConfig:      cfg.Wire(),
		EntityCount:        cfg.EntityCount,
		Zone:               zone,
		DJRoster:           s.rosterEntries(),
		ActiveDJ:           s.roster.ActiveID(),
		HealthStats:        s.healthStats(),
		MinecraftConnected: s.mc != nil && s.mc.Connected(),
		PendingDJs:         s.pendingEntries(),
		BannerProfiles:     profiles,
	}
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
