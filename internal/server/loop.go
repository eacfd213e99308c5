package server

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/mcav/internal/dj"
	"github.com/MrWong99/mcav/internal/effect"
	"github.com/MrWong99/mcav/internal/pattern"
	"github.com/MrWong99/mcav/internal/sanitize"
	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

const (
	// tickInterval is the nominal broadcast period (~60 Hz).
	tickInterval = 16 * time.Millisecond

	// rendererInterval paces downstream entity updates to 20 Hz; browsers
	// still receive every tick.
	rendererInterval = 50 * time.Millisecond

	// stallRealign resets the tick schedule after a stall instead of
	// burst-catching up.
	stallRealign = 250 * time.Millisecond

	// healthLogInterval spaces the periodic health summary.
	healthLogInterval = time.Minute

	// errorBackoffThreshold and errorBackoff throttle a persistently
	// failing loop without tearing it down.
	errorBackoffThreshold = 50
	errorBackoff          = time.Second
)

// Phase-assist thresholds: a beat is fabricated when the tempo tracker is
// confident, the phase sits on a beat boundary, and most of a beat period
// has passed since the last assist.
const (
	phaseAssistConfidence  = 0.60
	phaseAssistWindow      = 0.08
	phaseAssistMinFraction = 0.6
)

// Beat particle burst parameters.
const (
	beatParticleThreshold = 0.2
	beatParticlesPerUnit  = 20
	maxBeatParticles      = 100
)

// RunBroadcastLoop drives the ~60 Hz tick until ctx is cancelled. A
// panicking tick is counted and the loop continues; after 50 consecutive
// failures the pace drops to one tick per second.
func (s *Server) RunBroadcastLoop(ctx context.Context) error {
	s.log.Info("broadcast loop started", "interval", tickInterval)

	next := time.Now()
	lastHealth := time.Now()
	consecutiveErrors := 0

	for {
		if err := s.safeTick(ctx); err != nil {
			consecutiveErrors++
			s.log.Error("broadcast tick failed", "err", err, "consecutive", consecutiveErrors)
		} else {
			consecutiveErrors = 0
		}

		if time.Since(lastHealth) >= healthLogInterval {
			s.logHealth()
			lastHealth = time.Now()
		}

		wait := tickInterval
		if consecutiveErrors >= errorBackoffThreshold {
			wait = errorBackoff
			next = time.Now()
		}

		next = next.Add(wait)
		d := time.Until(next)
		if d < -stallRealign {
			// The loop fell behind (GC pause, debugger, suspend); realign
			// rather than firing a burst of catch-up ticks.
			next = time.Now()
			continue
		}
		if d > 0 {
			select {
			case <-ctx.Done():
				s.log.Info("broadcast loop stopped")
				return nil
			case <-time.After(d):
			}
		} else {
			select {
			case <-ctx.Done():
				s.log.Info("broadcast loop stopped")
				return nil
			default:
			}
		}
	}
}

// safeTick converts a tick panic into an error so one bad frame cannot
// kill the loop.
func (s *Server) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	s.tick(ctx)
	return nil
}

// tick produces and distributes one frame.
func (s *Server) tick(ctx context.Context) {
	start := time.Now()

	st, tempoConf, snap, activeID, activeDirect, activeMC := s.tickAudio(start)

	shouldSend := s.mc != nil && shouldSendToRenderer(activeDirect, activeMC)
	needEntities := shouldSend || s.hub.Len() > 0

	// Effect GC runs every tick; an expired blackout must restore
	// visibility even when nobody is watching.
	expired, vis := s.effects.GC()
	for _, name := range expired {
		s.log.Debug("effect expired", "effect", name)
	}
	if vis != effect.VisibilityUnchanged {
		s.applyVisibility(ctx, vis)
	}

	var (
		ents        []protocol.Entity
		patternName string
		frameNo     int64
	)
	s.viz.mu.Lock()
	s.viz.frame++
	frameNo = s.viz.frame
	st.Frame = frameNo
	patternName = s.viz.engine.CurrentName()
	cfg := s.viz.cfg
	for i := range st.Bands {
		st.Bands[i] = clamp01(st.Bands[i] * s.viz.sensitivity[i])
	}
	if needEntities {
		frozen := s.viz.lastEntities
		var live []protocol.Entity
		if !s.effects.FreezeActive() && !s.effects.BlackoutActive() {
			live = s.viz.engine.Evaluate(st, cfg, start)
		}
		ents = sanitize.Entities(s.effects.Apply(live, frozen), pattern.MaxEntities)
		if ents == nil {
			// Blackout frames carry an explicit empty array, not null.
			ents = []protocol.Entity{}
		}
		if !s.effects.BlackoutActive() {
			s.viz.lastEntities = ents
		}
	}
	s.viz.mu.Unlock()

	calcDone := time.Now()

	if shouldSend {
		if st.IsBeat && st.BeatIntensity > beatParticleThreshold {
			s.pendingParticles = append(s.pendingParticles, protocol.Particle{
				Effect:    "beat",
				Count:     beatParticleCount(st.BeatIntensity),
				X:         0.5,
				Y:         0.5,
				Z:         0.5,
				Intensity: st.BeatIntensity,
			})
		}
		// Pace the renderer to 20 Hz; beat bursts that land between sends
		// ride along on the next one.
		if start.Sub(s.lastRendererSend) >= rendererInterval {
			raud := sanitize.RendererAudio(st.Bands, st.Amplitude, st.IsBeat, st.BeatIntensity, st.BPM, tempoConf, st.BeatPhase)
			if err := s.mc.BatchUpdateFast(ctx, ents, s.pendingParticles, raud); err != nil {
				s.log.Debug("renderer fast update failed", "err", err)
			}
			s.pendingParticles = nil
			s.lastRendererSend = start
		}
	} else {
		// The active direct-mode DJ owns the downstream path; restart the
		// cadence fresh when it comes back to us.
		s.lastRendererSend = time.Time{}
		s.pendingParticles = nil
	}
	rendererDone := time.Now()

	if s.hub.Len() > 0 {
		frame := protocol.StateFrame{
			Type:          "state",
			Entities:      ents,
			Bands:         st.Bands,
			Amplitude:     st.Amplitude,
			IsBeat:        st.IsBeat,
			BeatIntensity: st.BeatIntensity,
			Frame:         frameNo,
			Pattern:       patternName,
			ActiveDJ:      activeID,
			ZoneStatus: protocol.ZoneStatus{
				BPMEstimate:     st.BPM,
				TempoConfidence: tempoConf,
				BeatPhase:       st.BeatPhase,
			},
		}
		if activeID != "" {
			frame.InstantBass = snap.Frame.InstantBass
			frame.InstantKick = snap.Frame.InstantKick
			frame.LatencyMs = snap.LatencyMs
			frame.PingMs = snap.NetworkRTTMs
			frame.PipelineMs = snap.PipelineMs
			frame.FPS = snap.FPS
		}
		s.hub.Broadcast(ctx, frame)
	}

	now := time.Now()
	s.stats.framesProcessed.Add(1)
	s.stats.observeFrame(calcDone.Sub(start), rendererDone.Sub(calcDone), now.Sub(rendererDone), now.Sub(start), len(ents))
	s.metrics.CurrentBPM.Record(ctx, st.BPM)
	s.metrics.BroadcastDuration.Record(ctx, now.Sub(start).Seconds())
}

// tickAudio picks the frame's audio source: the active DJ's latest frame,
// or the decaying fallback when nobody is active. The phase assist may
// fabricate a beat upstream of the pattern call.
func (s *Server) tickAudio(now time.Time) (st audio.State, tempoConf float64, snap dj.Metrics, activeID string, direct, mcConnected bool) {
	active := s.roster.Active()
	if active == nil {
		s.viz.mu.Lock()
		bands, peak := s.viz.decayFallbackLocked()
		s.viz.mu.Unlock()
		st = audio.State{Bands: bands, Amplitude: peak}
		return st, 0, dj.Metrics{}, "", false, false
	}

	snap = active.Snapshot()
	f := snap.Frame
	st = audio.State{
		Bands:         f.Bands,
		Amplitude:     f.Peak,
		IsBeat:        f.Beat,
		BeatIntensity: f.BeatIntensity,
		BPM:           f.BPM,
		BeatPhase:     f.BeatPhase,
	}
	if phaseAssist(f, active.PhaseAssistAt(), now) {
		st.IsBeat = true
		active.MarkPhaseAssist(now)
	}

	s.viz.mu.Lock()
	s.viz.storeFallbackLocked(f.Bands, f.Peak)
	s.viz.mu.Unlock()

	return st, f.TempoConfidence, snap, active.ID, active.DirectMode, snap.MCConnected
}

// shouldSendToRenderer reports whether the server owns the downstream
// publish this frame. A healthy direct-mode active DJ publishes itself;
// double-publishing would fight over the same entities.
func shouldSendToRenderer(activeDirect, activeMC bool) bool {
	return !(activeDirect && activeMC)
}

// phaseAssist decides whether to fabricate a beat for a frame that missed
// one: the tempo tracker must be confident, the phase within 8% of a
// boundary, and at least 60% of a beat period elapsed since the previous
// assist.
func phaseAssist(f audio.Frame, lastAssist, now time.Time) bool {
	if f.Beat {
		return false
	}
	if f.TempoConfidence < phaseAssistConfidence || f.BPM <= 0 {
		return false
	}
	if f.BeatPhase >= phaseAssistWindow && f.BeatPhase <= 1-phaseAssistWindow {
		return false
	}
	period := 60.0 / f.BPM
	return now.Sub(lastAssist).Seconds() >= phaseAssistMinFraction*period
}

// beatParticleCount sizes the burst for one beat.
func beatParticleCount(intensity float64) int {
	n := int(beatParticlesPerUnit * intensity)
	if n > maxBeatParticles {
		return maxBeatParticles
	}
	if n < 1 {
		return 1
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// logHealth emits the once-a-minute operational summary.
func (s *Server) logHealth() {
	h := s.healthStats()
	s.log.Info("health summary",
		"djs", h.CurrentDJs,
		"browsers", h.CurrentBrowsers,
		"dj_connects", h.DJConnects,
		"dj_disconnects", h.DJDisconnects,
		"mc_connected", h.MCConnected,
		"mc_reconnects", h.MCReconnectCount,
		"frames", h.FramesProcessed,
	)
}
