// Package effect layers operator-triggered visual effects on top of the
// pattern engine's output. Timed effects (flash, strobe, pulse, wave,
// spiral, explode) deform the entity list and expire on their own;
// toggle effects (blackout, freeze) stay active until retriggered with
// zero intensity.
package effect

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/mcav/pkg/protocol"
)

// Toggle effect names.
const (
	Blackout = "blackout"
	Freeze   = "freeze"
)

// Toggles never expire on their own; a day-long duration keeps the GC
// path uniform without a special case.
const toggleDuration = 24 * time.Hour

var timedEffects = map[string]bool{
	"flash":   true,
	"strobe":  true,
	"pulse":   true,
	"wave":    true,
	"spiral":  true,
	"explode": true,
}

// Visibility is the renderer side-effect a trigger or expiry demands.
type Visibility int

const (
	// VisibilityUnchanged requires no renderer call.
	VisibilityUnchanged Visibility = iota

	// VisibilityHide means the zone must be hidden (blackout engaged).
	VisibilityHide

	// VisibilityShow means the zone must be shown again (blackout lifted).
	VisibilityShow
)

type active struct {
	intensity float64
	start     time.Time
	duration  time.Duration
}

// State describes one active effect for control-plane snapshots.
type State struct {
	Effect      string  `json:"effect"`
	Intensity   float64 `json:"intensity"`
	RemainingMs float64 `json:"remaining_ms"`
}

// Compositor tracks active effects and applies their deformations each
// frame. Safe for concurrent use: triggers arrive from browser handlers
// while the broadcast loop applies and collects.
type Compositor struct {
	mu      sync.Mutex
	effects map[string]*active

	now func() time.Time
}

// NewCompositor creates an empty compositor.
func NewCompositor() *Compositor {
	return &Compositor{
		effects: make(map[string]*active),
		now:     time.Now,
	}
}

// Trigger activates (or, for toggles at zero intensity, deactivates) an
// effect. The returned Visibility tells the caller which renderer
// side-effect to fire. Unknown effect names are rejected.
func (c *Compositor) Trigger(name string, intensity float64, durationMs float64) (Visibility, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case name == Blackout || name == Freeze:
		if intensity == 0 {
			delete(c.effects, name)
			if name == Blackout {
				return VisibilityShow, nil
			}
			return VisibilityUnchanged, nil
		}
		c.effects[name] = &active{
			intensity: intensity,
			start:     c.now(),
			duration:  toggleDuration,
		}
		if name == Blackout {
			return VisibilityHide, nil
		}
		return VisibilityUnchanged, nil

	case timedEffects[name]:
		c.effects[name] = &active{
			intensity: intensity,
			start:     c.now(),
			duration:  time.Duration(durationMs * float64(time.Millisecond)),
		}
		return VisibilityUnchanged, nil

	default:
		return VisibilityUnchanged, fmt.Errorf("unknown effect %q", name)
	}
}

// FreezeActive reports whether the freeze toggle is engaged.
func (c *Compositor) FreezeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.effects[Freeze]
	return ok
}

// BlackoutActive reports whether the blackout toggle is engaged.
func (c *Compositor) BlackoutActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.effects[Blackout]
	return ok
}

// Snapshot lists the active effects in name order.
func (c *Compositor) Snapshot() []State {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]State, 0, len(c.effects))
	for name, a := range c.effects {
		out = append(out, State{
			Effect:      name,
			Intensity:   a.intensity,
			RemainingMs: math.Max(0, a.duration.Seconds()*1000-now.Sub(a.start).Seconds()*1000),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Effect < out[j].Effect })
	return out
}

// GC removes effects past their expiry. Returns the expired names and
// the visibility side-effect (show when blackout aged out).
func (c *Compositor) GC() (expired []string, vis Visibility) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for name, a := range c.effects {
		if now.Sub(a.start) >= a.duration {
			delete(c.effects, name)
			expired = append(expired, name)
			if name == Blackout {
				vis = VisibilityShow
			}
		}
	}
	sort.Strings(expired)
	return expired, vis
}

// Apply composes the active effects over the pattern output. Blackout
// wins over everything and yields an empty list; freeze replays the
// previous frame (supplied by the loop); timed effects deform a copy of
// entities with coordinates re-clamped to the unit cube.
func (c *Compositor) Apply(entities, frozen []protocol.Entity) []protocol.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.effects) == 0 {
		return entities
	}
	if _, ok := c.effects[Blackout]; ok {
		return []protocol.Entity{}
	}
	if _, ok := c.effects[Freeze]; ok {
		if frozen != nil {
			return frozen
		}
		return entities
	}

	now := c.now()
	out := make([]protocol.Entity, len(entities))
	copy(out, entities)

	for name, a := range c.effects {
		elapsed := now.Sub(a.start).Seconds()
		progress := 1.0
		if d := a.duration.Seconds(); d > 0 {
			progress = math.Min(1, elapsed/d)
		}
		applyTimed(name, out, a.intensity, elapsed, progress)
	}
	return out
}

func applyTimed(name string, out []protocol.Entity, intensity, elapsed, progress float64) {
	n := float64(len(out))
	if n == 0 {
		return
	}
	switch name {
	case "flash":
		m := intensity * (1 - progress)
		for i := range out {
			out[i].Scale = math.Min(1, out[i].Scale+m*0.5)
			out[i].Y = math.Min(1, out[i].Y+m*0.2)
		}
	case "strobe":
		// 8 Hz duty cycle: off phases collapse everything.
		if int(elapsed*8)%2 == 1 {
			for i := range out {
				out[i].Scale = 0.01
			}
		}
	case "pulse":
		v := math.Sin(elapsed*math.Pi*4) * intensity
		for i := range out {
			out[i].Scale = math.Max(0.05, out[i].Scale*(1+v*0.5))
		}
	case "wave":
		for i := range out {
			phase := float64(i) / n * 2 * math.Pi
			v := math.Sin(elapsed*3+phase) * intensity
			out[i].Y = clampUnit(out[i].Y + v*0.3)
		}
	case "spiral":
		radius := 0.3 * intensity * (1 - progress*0.5)
		for i := range out {
			angle := elapsed*2 + float64(i)/n*2*math.Pi
			out[i].X = clampUnit(0.5 + math.Cos(angle)*radius)
			out[i].Z = clampUnit(0.5 + math.Sin(angle)*radius)
		}
	case "explode":
		force := intensity * (1 - progress)
		for i := range out {
			dx := out[i].X - 0.5
			dy := out[i].Y - 0.5
			dz := out[i].Z - 0.5
			dist := math.Max(0.1, math.Sqrt(dx*dx+dy*dy+dz*dz))
			f := force / dist * 0.3
			out[i].X = clampUnit(out[i].X + dx*f)
			out[i].Y = clampUnit(out[i].Y + dy*f)
			out[i].Z = clampUnit(out[i].Z + dz*f)
			out[i].Scale = math.Max(0.05, out[i].Scale*(1+force*0.5))
		}
	}
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
