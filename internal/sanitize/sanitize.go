// Package sanitize clamps and validates every value crossing the network
// trust boundary. It is the only package permitted to silently coerce:
// every function here returns a well-formed value or drops the offending
// element, and none of them ever returns an error.
package sanitize

import (
	"math"

	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// Defaults substituted for non-finite numeric fields.
const (
	DefaultBPM = 120.0
)

// ClampFinite returns def when v is NaN or infinite, otherwise v bounded
// to [lo, hi].
func ClampFinite(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return math.Min(hi, math.Max(lo, v))
}

// Frame coerces a wire audio frame into a well-formed [audio.Frame].
// Band lists longer than five are truncated, shorter ones padded with
// zeros. Out-of-range or non-finite numerics fall back to their
// documented defaults.
func Frame(raw *protocol.DJAudioFrame) audio.Frame {
	var f audio.Frame

	for i := 0; i < audio.NumBands && i < len(raw.Bands); i++ {
		f.Bands[i] = ClampFinite(raw.Bands[i].Float(), 0, 1, 0)
	}
	f.Peak = ClampFinite(raw.Peak.Float(), 0, 5, 0)
	f.Beat = raw.Beat.Bool()
	f.BeatIntensity = ClampFinite(raw.BeatIntensity.Float(), 0, 5, 0)
	f.BPM = ClampFinite(raw.BPM.Float(), 0, 300, DefaultBPM)
	f.TempoConfidence = ClampFinite(raw.TempoConfidence.Float(), 0, 1, 0)
	f.BeatPhase = ClampFinite(raw.BeatPhase.Float(), 0, 1, 0)
	f.InstantBass = ClampFinite(raw.InstantBass.Float(), 0, 5, 0)
	f.InstantKick = raw.InstantKick.Bool()

	if seq := raw.Seq.Float(); !math.IsNaN(seq) && !math.IsInf(seq, 0) && seq > 0 {
		f.Seq = int64(seq)
	}

	// The producer timestamp is preserved as-is when finite; the latency
	// math validates it separately.
	if ts := raw.TS.Float(); !math.IsNaN(ts) && !math.IsInf(ts, 0) && ts > 0 {
		f.TS = ts
	}

	return f
}

// Entities enforces bounds and cardinality on an entity list before it is
// forwarded downstream. Elements with an empty id or non-finite
// coordinates are dropped; everything else is clamped in place.
func Entities(in []protocol.Entity, maxCount int) []protocol.Entity {
	if maxCount <= 0 || len(in) == 0 {
		return nil
	}
	out := make([]protocol.Entity, 0, min(len(in), maxCount))
	for _, e := range in {
		if len(out) >= maxCount {
			break
		}
		if e.ID == "" || !finite(e.X) || !finite(e.Y) || !finite(e.Z) {
			continue
		}
		e.X = ClampFinite(e.X, 0, 1, 0.5)
		e.Y = ClampFinite(e.Y, 0, 1, 0.5)
		e.Z = ClampFinite(e.Z, 0, 1, 0.5)
		e.Scale = ClampFinite(e.Scale, 0, 4, 0.2)
		e.Rotation = ClampFinite(e.Rotation, 0, 360, 0)
		if e.Band < 0 {
			e.Band = 0
		}
		if e.Brightness != nil {
			b := clampInt(*e.Brightness, 0, 15)
			e.Brightness = &b
		}
		if e.Interpolation != nil {
			t := clampInt(*e.Interpolation, 0, 100)
			e.Interpolation = &t
		}
		out = append(out, e)
	}
	return out
}

// RendererAudio builds the clamped audio summary for a fast renderer
// update from an already-sanitized frame plus the loop's visual values.
func RendererAudio(bands [audio.NumBands]float64, amplitude float64, isBeat bool, beatIntensity, bpm, tempoConfidence, beatPhase float64) protocol.RendererAudio {
	var out protocol.RendererAudio
	for i, b := range bands {
		out.Bands[i] = ClampFinite(b, 0, 1, 0)
	}
	out.Amplitude = ClampFinite(amplitude, 0, 5, 0)
	out.IsBeat = isBeat
	out.BeatIntensity = ClampFinite(beatIntensity, 0, 5, 0)
	out.BPM = ClampFinite(bpm, 0, 300, 0)
	out.TempoConfidence = ClampFinite(tempoConfidence, 0, 1, 0)
	out.BeatPhase = ClampFinite(beatPhase, 0, 1, 0)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
