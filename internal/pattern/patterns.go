package pattern

import (
	"fmt"
	"math"

	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// clamp01 bounds v to the unit interval.
func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// scaleFor maps a 0..1 drive value into [BaseScale, MaxScale], boosted on
// beats.
func scaleFor(drive float64, st audio.State, cfg Config) float64 {
	s := cfg.BaseScale + (cfg.MaxScale-cfg.BaseScale)*clamp01(drive)
	if st.IsBeat {
		s *= 1 + (cfg.BeatBoost-1)*clamp01(st.BeatIntensity)
	}
	return math.Min(s, 4)
}

// bandFor spreads n entities across the five bands.
func bandFor(i, n int) int {
	if n <= 0 {
		return 0
	}
	return i * audio.NumBands / n
}

// ── spectrum ──────────────────────────────────────────────────────────────────

// spectrumPattern is a classic analyzer bar row: entities line up along
// x, rise with their band's magnitude, and pulse on beats. It is also
// the fallback for unknown pattern names.
type spectrumPattern struct {
	t float64
}

func (p *spectrumPattern) Info() Info {
	return Info{
		ID:                  "spectrum",
		Name:                "Spectrum",
		Description:         "Frequency bars along the zone, one column group per band",
		RecommendedEntities: 16,
	}
}

func (p *spectrumPattern) Reset() { p.t = 0 }

func (p *spectrumPattern) Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity {
	p.t += dt
	n := cfg.EntityCount
	out := make([]protocol.Entity, 0, n)
	for i := 0; i < n; i++ {
		band := bandFor(i, n)
		level := st.Bands[band]
		x := (float64(i) + 0.5) / float64(n)
		y := clamp01(0.12 + 0.7*level)
		out = append(out, protocol.Entity{
			ID:       fmt.Sprintf("block_%d", i),
			X:        x,
			Y:        y,
			Z:        0.5,
			Scale:    scaleFor(level, st, cfg),
			Rotation: math.Mod(p.t*20, 360),
			Band:     band,
			Visible:  true,
		})
	}
	return out
}

// ── wave ──────────────────────────────────────────────────────────────────────

// wavePattern rolls a travelling sine across the row; amplitude follows
// the overall level and the wave speed follows the BPM.
type wavePattern struct {
	t float64
}

func (p *wavePattern) Info() Info {
	return Info{
		ID:                  "wave",
		Name:                "Wave",
		Description:         "Travelling sine wave, speed locked to the tempo",
		RecommendedEntities: 32,
	}
}

func (p *wavePattern) Reset() { p.t = 0 }

func (p *wavePattern) Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity {
	speed := 1.0
	if st.BPM > 0 {
		speed = st.BPM / 120.0
	}
	p.t += dt * speed

	n := cfg.EntityCount
	amp := 0.1 + 0.22*clamp01(st.Amplitude)
	out := make([]protocol.Entity, 0, n)
	for i := 0; i < n; i++ {
		x := (float64(i) + 0.5) / float64(n)
		y := 0.5 + amp*math.Sin(2*math.Pi*(2*x-p.t))
		band := bandFor(i, n)
		out = append(out, protocol.Entity{
			ID:      fmt.Sprintf("block_%d", i),
			X:       x,
			Y:       clamp01(y),
			Z:       0.5,
			Scale:   scaleFor(st.Bands[band], st, cfg),
			Band:    band,
			Visible: true,
		})
	}
	return out
}

// ── ring ──────────────────────────────────────────────────────────────────────

// ringPattern arranges entities on a rotating circle whose radius
// breathes with the amplitude.
type ringPattern struct {
	angle float64
}

func (p *ringPattern) Info() Info {
	return Info{
		ID:                  "ring",
		Name:                "Ring",
		Description:         "Rotating circle, radius breathing with the level",
		RecommendedEntities: 24,
	}
}

func (p *ringPattern) Reset() { p.angle = 0 }

func (p *ringPattern) Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity {
	spin := 0.4
	if st.BPM > 0 {
		spin += st.BPM / 240.0
	}
	p.angle += dt * spin

	n := cfg.EntityCount
	radius := 0.2 + 0.18*clamp01(st.Amplitude)
	if st.IsBeat {
		radius += 0.05 * clamp01(st.BeatIntensity)
	}
	out := make([]protocol.Entity, 0, n)
	for i := 0; i < n; i++ {
		a := p.angle + float64(i)*2*math.Pi/float64(n)
		band := bandFor(i, n)
		out = append(out, protocol.Entity{
			ID:       fmt.Sprintf("block_%d", i),
			X:        clamp01(0.5 + radius*math.Cos(a)),
			Y:        clamp01(0.35 + 0.3*st.Bands[band]),
			Z:        clamp01(0.5 + radius*math.Sin(a)),
			Scale:    scaleFor(st.Bands[band], st, cfg),
			Rotation: math.Mod(a*180/math.Pi, 360),
			Band:     band,
			Visible:  true,
		})
	}
	return out
}

// ── helix ─────────────────────────────────────────────────────────────────────

// helixPattern winds two strands around the vertical axis; bass widens
// the spiral.
type helixPattern struct {
	t float64
}

func (p *helixPattern) Info() Info {
	return Info{
		ID:                  "helix",
		Name:                "Helix",
		Description:         "Double helix climbing the zone, widened by bass",
		RecommendedEntities: 48,
	}
}

func (p *helixPattern) Reset() { p.t = 0 }

func (p *helixPattern) Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity {
	p.t += dt
	n := cfg.EntityCount
	radius := 0.18 + 0.14*clamp01(st.Bands[0])
	out := make([]protocol.Entity, 0, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / math.Max(1, float64(n-1))
		a := p.t + frac*4*math.Pi
		// Alternate entities between the two strands.
		if i%2 == 1 {
			a += math.Pi
		}
		band := bandFor(i, n)
		out = append(out, protocol.Entity{
			ID:       fmt.Sprintf("block_%d", i),
			X:        clamp01(0.5 + radius*math.Cos(a)),
			Y:        clamp01(0.08 + 0.84*frac),
			Z:        clamp01(0.5 + radius*math.Sin(a)),
			Scale:    scaleFor(st.Bands[band], st, cfg),
			Rotation: math.Mod(a*180/math.Pi, 360),
			Band:     band,
			Visible:  true,
		})
	}
	return out
}

// ── grid ──────────────────────────────────────────────────────────────────────

// gridPattern lays entities out on a floor grid; each cell's height and
// scale follow its band.
type gridPattern struct {
	t float64
}

func (p *gridPattern) Info() Info {
	return Info{
		ID:                  "grid",
		Name:                "Grid",
		Description:         "Floor grid, cells bouncing with their band",
		RecommendedEntities: 64,
	}
}

func (p *gridPattern) Reset() { p.t = 0 }

func (p *gridPattern) Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity {
	p.t += dt
	n := cfg.EntityCount
	side := int(math.Ceil(math.Sqrt(float64(n))))
	out := make([]protocol.Entity, 0, n)
	for i := 0; i < n; i++ {
		row, col := i/side, i%side
		band := bandFor(i, n)
		level := st.Bands[band]
		// Slow ripple so a silent grid still shimmers.
		ripple := 0.03 * math.Sin(p.t*1.5+float64(row+col)*0.7)
		out = append(out, protocol.Entity{
			ID:      fmt.Sprintf("block_%d", i),
			X:       (float64(col) + 0.5) / float64(side),
			Y:       clamp01(0.1 + 0.6*level + ripple),
			Z:       (float64(row) + 0.5) / float64(side),
			Scale:   scaleFor(level, st, cfg),
			Band:    band,
			Visible: true,
		})
	}
	return out
}

// ── starburst ─────────────────────────────────────────────────────────────────

// starburstPattern launches entities outward on each beat and lets them
// fall back toward the center. Attack controls how hard a beat kicks the
// radius, release how fast it decays.
type starburstPattern struct {
	t     float64
	drive float64
}

func (p *starburstPattern) Info() Info {
	return Info{
		ID:                  "starburst",
		Name:                "Starburst",
		Description:         "Beat-driven radial burst with tunable attack and release",
		RecommendedEntities: 32,
	}
}

func (p *starburstPattern) Reset() {
	p.t = 0
	p.drive = 0
}

func (p *starburstPattern) Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity {
	p.t += dt
	if st.IsBeat {
		kick := clamp01(st.BeatIntensity) * clamp01(cfg.Attack+0.3)
		if kick > p.drive {
			p.drive = kick
		}
	}
	// Exponential falloff scaled by the release setting.
	p.drive *= math.Pow(1-clamp01(cfg.Release), dt*60)

	n := cfg.EntityCount
	radius := 0.08 + 0.34*p.drive
	out := make([]protocol.Entity, 0, n)
	for i := 0; i < n; i++ {
		a := float64(i) * 2 * math.Pi / float64(n)
		// Golden-angle vertical spread keeps the burst volumetric.
		v := math.Mod(float64(i)*0.381966, 1.0)
		band := bandFor(i, n)
		out = append(out, protocol.Entity{
			ID:       fmt.Sprintf("block_%d", i),
			X:        clamp01(0.5 + radius*math.Cos(a)),
			Y:        clamp01(0.25 + 0.5*v),
			Z:        clamp01(0.5 + radius*math.Sin(a)),
			Scale:    scaleFor(p.drive+0.3*st.Bands[band], st, cfg),
			Rotation: math.Mod(p.t*45+a*180/math.Pi, 360),
			Band:     band,
			Visible:  true,
		})
	}
	return out
}
