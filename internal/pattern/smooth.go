package pattern

import (
	"math"

	"github.com/MrWong99/mcav/pkg/protocol"
)

// Motion smoothing constants. Position uses a faster blend for large
// moves so transients stay punchy, and a slower one for small drifts so
// idle entities do not shimmer. Scale rises faster than it falls to keep
// beat pulses sharp.
const (
	posAlphaFast     = 0.78
	posAlphaSlow     = 0.48
	posFastThreshold = 0.035
	posDeadband      = 0.0015
	scaleAlphaUp     = 0.84
	scaleAlphaDown   = 0.56
	rotAlpha         = 0.52
)

type smoothState struct {
	x, y, z  float64
	scale    float64
	rotation float64
	seen     bool
}

// Smoother blends each entity's pose toward its target frame to frame,
// keyed by entity id. Entities absent from a frame are forgotten so a
// pattern switch does not drag stale poses along.
type Smoother struct {
	states map[string]*smoothState
}

// NewSmoother creates an empty smoother.
func NewSmoother() *Smoother {
	return &Smoother{states: make(map[string]*smoothState)}
}

// Reset drops all tracked entities.
func (s *Smoother) Reset() {
	s.states = make(map[string]*smoothState)
}

// Apply blends the target entity list against the tracked poses and
// returns the smoothed list. The input slice is mutated in place.
func (s *Smoother) Apply(entities []protocol.Entity) []protocol.Entity {
	seen := make(map[string]bool, len(entities))
	for i := range entities {
		e := &entities[i]
		seen[e.ID] = true

		st, ok := s.states[e.ID]
		if !ok {
			s.states[e.ID] = &smoothState{
				x: e.X, y: e.Y, z: e.Z,
				scale: e.Scale, rotation: e.Rotation,
				seen: true,
			}
			continue
		}

		st.x = smoothAxis(st.x, e.X)
		st.y = smoothAxis(st.y, e.Y)
		st.z = smoothAxis(st.z, e.Z)

		alpha := scaleAlphaDown
		if e.Scale > st.scale {
			alpha = scaleAlphaUp
		}
		st.scale += (e.Scale - st.scale) * alpha

		st.rotation = smoothRotation(st.rotation, e.Rotation)

		e.X, e.Y, e.Z = st.x, st.y, st.z
		e.Scale = st.scale
		e.Rotation = st.rotation
	}

	// Drop entities the pattern stopped emitting.
	for id := range s.states {
		if !seen[id] {
			delete(s.states, id)
		}
	}
	return entities
}

func smoothAxis(prev, target float64) float64 {
	delta := target - prev
	if math.Abs(delta) < posDeadband {
		return prev
	}
	alpha := posAlphaSlow
	if math.Abs(delta) > posFastThreshold {
		alpha = posAlphaFast
	}
	return prev + delta*alpha
}

// smoothRotation blends along the shortest arc so 350°→10° turns 20°
// forward instead of 340° backward.
func smoothRotation(prev, target float64) float64 {
	delta := math.Mod(target-prev, 360)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	r := math.Mod(prev+delta*rotAlpha, 360)
	if r < 0 {
		r += 360
	}
	return r
}
