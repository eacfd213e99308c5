// Package audio defines the analyzed-audio types exchanged between DJ
// clients, the broadcast loop, and the visualization patterns.
//
// A [Frame] is one sanitized wire frame from a DJ. A [State] is the
// per-tick view handed to a pattern: the frame's spectral fields plus the
// loop's own frame counter. Neither type carries any socket state.
package audio

import "math"

// NumBands is the fixed number of frequency bands in every frame:
// bass, low-mid, mid, high-mid, high.
const NumBands = 5

// Frame is a single sanitized audio analysis frame from a DJ client.
// All numeric fields are finite and within their documented ranges after
// passing through the sanitizer.
type Frame struct {
	// Seq is the producer's monotonically non-decreasing frame number.
	Seq int64

	// Bands holds exactly [NumBands] magnitudes in [0,1].
	Bands [NumBands]float64

	// Peak is the overall amplitude in [0,5]. Values above 1 represent
	// over-unity transients and are clamped further downstream.
	Peak float64

	// Beat reports whether the producer detected a beat on this frame.
	Beat bool

	// BeatIntensity is the beat strength in [0,5].
	BeatIntensity float64

	// BPM is the producer's tempo estimate in [0,300].
	BPM float64

	// TempoConfidence is the tempo estimate confidence in [0,1].
	TempoConfidence float64

	// BeatPhase is the position within the current beat in [0,1]
	// (0 = on beat, 0.5 = halfway to the next).
	BeatPhase float64

	// InstantBass is the instantaneous bass energy in [0,5].
	InstantBass float64

	// InstantKick reports an instantaneous kick transient.
	InstantKick bool

	// TS is the producer's wall-clock send time in Unix seconds. Zero when
	// the producer did not supply one. Validated by the latency math, not
	// by the sanitizer.
	TS float64
}

// State is the audio view a pattern receives each tick.
type State struct {
	Bands         [NumBands]float64
	Amplitude     float64
	IsBeat        bool
	BeatIntensity float64
	Frame         int64
	BPM           float64
	BeatPhase     float64
}

// EMA blends sample into prev with smoothing factor alpha:
// prev*(1-alpha) + sample*alpha.
func EMA(prev, sample, alpha float64) float64 {
	return prev*(1-alpha) + sample*alpha
}

// MaxLatencyMs is the upper clamp for every latency metric.
const MaxLatencyMs = 60_000.0

// ClampLatency bounds a latency measurement to [0, MaxLatencyMs] and maps
// non-finite values to 0.
func ClampLatency(ms float64) float64 {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return 0
	}
	return math.Min(ms, MaxLatencyMs)
}
