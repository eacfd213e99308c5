package protocol

import "encoding/json"

// ── server → renderer ─────────────────────────────────────────────────────────

// RendererAudio is the clamped audio summary attached to each fast update.
type RendererAudio struct {
	Bands           [5]float64 `json:"bands"`
	Amplitude       float64    `json:"amplitude"`
	IsBeat          bool       `json:"is_beat"`
	BeatIntensity   float64    `json:"beat_intensity"`
	BPM             float64    `json:"bpm"`
	TempoConfidence float64    `json:"tempo_confidence"`
	BeatPhase       float64    `json:"beat_phase"`
}

// BatchUpdateFast is the fire-and-forget per-frame entity update. It is
// sent without awaiting an acknowledgement.
type BatchUpdateFast struct {
	Type      string        `json:"type"`
	Zone      string        `json:"zone"`
	Entities  []Entity      `json:"entities"`
	Particles []Particle    `json:"particles,omitempty"`
	Audio     RendererAudio `json:"audio"`
}

// RendererRequest is the envelope for request/response operations against
// the renderer. Responses are correlated by RequestID.
type RendererRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`

	Zone     string `json:"zone,omitempty"`
	Visible  *bool  `json:"visible,omitempty"`
	Count    int    `json:"count,omitempty"`
	Material string `json:"material,omitempty"`

	// Payload carries passthrough fields for allowlisted admin commands.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RendererResponse is the decoded reply to a [RendererRequest].
type RendererResponse struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RendererVoice relays an opaque voice payload downstream.
type RendererVoice struct {
	Type string  `json:"type"`
	Seq  float64 `json:"seq"`
	Data string  `json:"data"`
}
