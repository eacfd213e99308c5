// Package pattern turns analyzed audio into entity geometry.
//
// A [Pattern] is a deterministic generator: given the same audio state,
// config and accumulated time it produces the same entity list. All
// animation state lives inside the pattern instance, so swapping
// patterns resets the animation. The [Engine] owns the current pattern,
// cross-fades on switches, and smooths entity motion frame to frame.
package pattern

import (
	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// Config is the tuning block shared by every pattern. It is a value
// type: the broadcast loop re-reads it at the top of each tick so
// control-plane mutations are observed atomically per frame.
type Config struct {
	EntityCount   int
	ZoneSize      float64
	BeatBoost     float64
	BaseScale     float64
	MaxScale      float64
	Attack        float64
	Release       float64
	BeatThreshold float64
}

// DefaultConfig returns the startup tuning.
func DefaultConfig() Config {
	return Config{
		EntityCount:   16,
		ZoneSize:      10.0,
		BeatBoost:     1.5,
		BaseScale:     0.2,
		MaxScale:      1.0,
		Attack:        0.35,
		Release:       0.08,
		BeatThreshold: 1.3,
	}
}

// ApplyPreset overwrites the audio-response fields from a preset,
// leaving geometry fields untouched.
func (c *Config) ApplyPreset(p audio.Preset) {
	c.Attack = p.Attack
	c.Release = p.Release
	c.BeatThreshold = p.BeatThreshold
}

// Wire converts the config to its wire form.
func (c Config) Wire() protocol.PatternConfig {
	return protocol.PatternConfig{
		EntityCount:   c.EntityCount,
		ZoneSize:      c.ZoneSize,
		BeatBoost:     c.BeatBoost,
		BaseScale:     c.BaseScale,
		MaxScale:      c.MaxScale,
		Attack:        c.Attack,
		Release:       c.Release,
		BeatThreshold: c.BeatThreshold,
	}
}

// ConfigFromWire builds a config from its wire form, clamping the entity
// count into the supported range.
func ConfigFromWire(w protocol.PatternConfig) Config {
	c := Config{
		EntityCount:   ClampEntityCount(w.EntityCount),
		ZoneSize:      w.ZoneSize,
		BeatBoost:     w.BeatBoost,
		BaseScale:     w.BaseScale,
		MaxScale:      w.MaxScale,
		Attack:        w.Attack,
		Release:       w.Release,
		BeatThreshold: w.BeatThreshold,
	}
	return c
}

// Entity count bounds enforced on every admin mutation.
const (
	MinEntities = 1
	MaxEntities = 256
)

// ClampEntityCount bounds n to [MinEntities, MaxEntities].
func ClampEntityCount(n int) int {
	if n < MinEntities {
		return MinEntities
	}
	if n > MaxEntities {
		return MaxEntities
	}
	return n
}

// Info is the static metadata of a pattern.
type Info struct {
	ID                  string
	Name                string
	Description         string
	RecommendedEntities int
}

// Pattern generates entity geometry from audio. Implementations are not
// safe for concurrent use; the engine serialises calls.
type Pattern interface {
	// Info returns the pattern's static metadata.
	Info() Info

	// Calculate produces the entity list for one tick. dt is the real
	// elapsed time since the previous call, capped by the engine.
	Calculate(st audio.State, cfg Config, dt float64) []protocol.Entity

	// Reset clears all internal animation state.
	Reset()
}
