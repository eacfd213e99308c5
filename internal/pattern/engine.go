package pattern

import (
	"math"
	"time"

	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// Cross-fade window on a pattern switch.
const crossfade = time.Second

// A stalled loop (debugger, GC pause, laptop sleep) must not produce a
// huge dt that teleports every entity.
const maxDt = 0.05

// Engine owns the active pattern and evaluates it once per tick. On a
// switch it keeps the previous pattern alive for the cross-fade window
// and blends the two entity lists with a smoothstep weight, then smooths
// the result. Not safe for concurrent use; the broadcast loop is the
// only caller.
type Engine struct {
	current  Pattern
	previous Pattern
	switched time.Time

	smoother *Smoother
	lastTick time.Time
	frames   uint64
}

// NewEngine creates an engine running the named pattern, falling back to
// the default when the name is unknown.
func NewEngine(name string) *Engine {
	p, _ := New(name)
	return &Engine{
		current:  p,
		smoother: NewSmoother(),
	}
}

// CurrentName returns the active pattern id.
func (e *Engine) CurrentName() string {
	return e.current.Info().ID
}

// Frames returns the number of ticks evaluated since start.
func (e *Engine) Frames() uint64 {
	return e.frames
}

// SetPattern switches the active pattern, starting a cross-fade. A
// switch to the already-active pattern is a no-op. Returns whether name
// was a known pattern (the fallback is applied regardless).
func (e *Engine) SetPattern(name string, now time.Time) bool {
	p, known := New(name)
	if p.Info().ID == e.current.Info().ID {
		return known
	}
	e.previous = e.current
	e.current = p
	e.current.Reset()
	e.switched = now
	return known
}

// Evaluate runs one tick: advance the active pattern (and the outgoing
// one during a cross-fade), blend, and smooth.
func (e *Engine) Evaluate(st audio.State, cfg Config, now time.Time) []protocol.Entity {
	dt := maxDt
	if !e.lastTick.IsZero() {
		dt = math.Min(now.Sub(e.lastTick).Seconds(), maxDt)
	}
	e.lastTick = now
	e.frames++

	entities := e.current.Calculate(st, cfg, dt)

	if e.previous != nil {
		elapsed := now.Sub(e.switched)
		if elapsed >= crossfade {
			e.previous = nil
		} else {
			old := e.previous.Calculate(st, cfg, dt)
			w := smoothstep(elapsed.Seconds() / crossfade.Seconds())
			entities = blend(old, entities, w)
		}
	}

	return e.smoother.Apply(entities)
}

// smoothstep eases t in [0,1] with zero slope at both ends.
func smoothstep(t float64) float64 {
	t = math.Min(1, math.Max(0, t))
	return t * t * (3 - 2*t)
}

// blend interpolates matching ids between the outgoing and incoming
// lists. Incoming entities without a counterpart fade in via scale;
// outgoing-only entities are dropped immediately since the smoother
// already eases position jumps.
func blend(old, cur []protocol.Entity, w float64) []protocol.Entity {
	byID := make(map[string]*protocol.Entity, len(old))
	for i := range old {
		byID[old[i].ID] = &old[i]
	}
	for i := range cur {
		e := &cur[i]
		o, ok := byID[e.ID]
		if !ok {
			e.Scale *= w
			continue
		}
		e.X = lerp(o.X, e.X, w)
		e.Y = lerp(o.Y, e.Y, w)
		e.Z = lerp(o.Z, e.Z, w)
		e.Scale = lerp(o.Scale, e.Scale, w)
		e.Rotation = lerpAngle(o.Rotation, e.Rotation, w)
	}
	return cur
}

func lerp(a, b, w float64) float64 {
	return a + (b-a)*w
}

func lerpAngle(a, b, w float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	r := math.Mod(a+d*w, 360)
	if r < 0 {
		r += 360
	}
	return r
}
