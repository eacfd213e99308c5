package protocol

import "encoding/json"

// ── browser → server ──────────────────────────────────────────────────────────

// AdminRequest is the flat decode of every browser/admin request. Only
// the fields relevant to the request's Type are populated; the rest stay
// at their zero values. Raw passthrough commands keep the original frame
// bytes alongside.
type AdminRequest struct {
	Type string `json:"type"`

	// set_pattern
	Pattern string `json:"pattern"`

	// set_preset: either a preset name or an object of raw values.
	Preset json.RawMessage `json:"preset"`

	// set_band_sensitivity
	Sensitivity []Number `json:"sensitivity"`

	// set_audio_setting
	Setting string `json:"setting"`
	Value   Number `json:"value"`

	// set_entity_count
	Count Number `json:"count"`

	// set_zone
	Zone string `json:"zone"`

	// DJ lifecycle targets.
	DJID string `json:"dj_id"`

	// reorder_dj_queue
	Order []string `json:"order"`

	// generate_connect_code
	TTLMinutes Number `json:"ttl_minutes"`

	// revoke_connect_code
	Code string `json:"code"`

	// trigger_effect / blackout / freeze. Pointers distinguish an absent
	// field (use the default) from an explicit zero (toggle off).
	Effect     string  `json:"effect"`
	Intensity  *Number `json:"intensity"`
	DurationMs *Number `json:"duration_ms"`

	// set_banner_profile
	Profile json.RawMessage `json:"profile"`

	// upload_banner_logo: base64 PNG or JPEG plus target grid size.
	Image  string `json:"image"`
	Width  Number `json:"width"`
	Height Number `json:"height"`
}

// ── server → browser ──────────────────────────────────────────────────────────

// Pong answers a browser ping.
type Pong struct {
	Type string `json:"type"`
}

// Ping is the server-initiated browser heartbeat.
type Ping struct {
	Type string `json:"type"`
	TS   float64 `json:"ts"`
}

// ErrorMessage reports a failed admin request.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// RosterEntry is the per-DJ summary shown in the admin panel.
type RosterEntry struct {
	DJID           string  `json:"dj_id"`
	DJName         string  `json:"dj_name"`
	Priority       int     `json:"priority"`
	IsActive       bool    `json:"is_active"`
	DirectMode     bool    `json:"direct_mode"`
	MCConnected    bool    `json:"mc_connected"`
	VoiceStreaming bool    `json:"voice_streaming"`
	LatencyMs      float64 `json:"latency_ms"`
	PingMs         float64 `json:"ping_ms"`
	PipelineMs     float64 `json:"pipeline_latency_ms"`
	FPS            float64 `json:"fps"`
	Frames         int64   `json:"frames"`
	ConnectedAt    float64 `json:"connected_at"`
}

// DJRoster broadcasts the ordered roster and the active id.
type DJRoster struct {
	Type     string        `json:"type"`
	Roster   []RosterEntry `json:"roster"`
	ActiveDJ string        `json:"active_dj"`
}

// PendingEntry is a connect-code applicant awaiting approval.
type PendingEntry struct {
	DJID         string  `json:"dj_id"`
	DJName       string  `json:"dj_name"`
	DirectMode   bool    `json:"direct_mode"`
	WaitingSince float64 `json:"waiting_since"`
}

// DJPending notifies operators of a new pending applicant.
type DJPending struct {
	Type string `json:"type"`
	PendingEntry
}

// DJApproved notifies operators that an applicant was admitted.
type DJApproved struct {
	Type   string `json:"type"`
	DJID   string `json:"dj_id"`
	DJName string `json:"dj_name"`
}

// DJDenied notifies operators that an applicant was denied or left.
type DJDenied struct {
	Type   string `json:"type"`
	DJID   string `json:"dj_id"`
	Reason string `json:"reason,omitempty"`
}

// CodeEntry is one connect code in an admin listing.
type CodeEntry struct {
	Code      string  `json:"code"`
	CreatedAt float64 `json:"created_at"`
	ExpiresAt float64 `json:"expires_at"`
	Used      bool    `json:"used"`
}

// ConnectCodes lists the currently valid connect codes.
type ConnectCodes struct {
	Type  string      `json:"type"`
	Codes []CodeEntry `json:"codes"`
}

// ConnectCodeGenerated returns a freshly issued code.
type ConnectCodeGenerated struct {
	Type      string  `json:"type"`
	Code      string  `json:"code"`
	ExpiresAt float64 `json:"expires_at"`
}

// PatternChanged notifies browsers of a pattern switch.
type PatternChanged struct {
	Type    string        `json:"type"`
	Pattern string        `json:"pattern"`
	Config  PatternConfig `json:"config"`
}

// PatternInfo describes one available pattern.
type PatternInfo struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	RecommendedEntities int    `json:"recommended_entities"`
}

// ConfigUpdate notifies browsers of a capacity or zone change.
type ConfigUpdate struct {
	Type        string `json:"type"`
	EntityCount int    `json:"entity_count"`
	Zone        string `json:"zone"`
}

// PresetChanged notifies browsers of an audio preset change.
type PresetChanged struct {
	Type        string     `json:"type"`
	Preset      string     `json:"preset"`
	Sensitivity [5]float64 `json:"band_sensitivity"`
}

// EffectTriggered mirrors an effect trigger to all browsers.
type EffectTriggered struct {
	Type       string  `json:"type"`
	Effect     string  `json:"effect"`
	Intensity  float64 `json:"intensity"`
	DurationMs float64 `json:"duration_ms"`
}

// MinecraftStatus reports downstream renderer connectivity transitions.
type MinecraftStatus struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// HealthStats is the server counters snapshot embedded in VJState and
// served on /health.
type HealthStats struct {
	UptimeSeconds      float64 `json:"uptime_seconds"`
	CurrentDJs         int     `json:"current_djs"`
	DJConnects         int64   `json:"dj_connects"`
	DJDisconnects      int64   `json:"dj_disconnects"`
	CurrentBrowsers    int     `json:"current_browsers"`
	BrowserConnects    int64   `json:"browser_connects"`
	BrowserDisconnects int64   `json:"browser_disconnects"`
	MCConnected        bool    `json:"mc_connected"`
	MCReconnectCount   int64   `json:"mc_reconnect_count"`
	FramesProcessed    int64   `json:"frames_processed"`

	FrameProfile FrameProfile `json:"frame_profile"`
}

// FrameProfile is a smoothed per-tick timing breakdown of the broadcast
// loop, for live performance dashboards.
type FrameProfile struct {
	CalcMs      float64 `json:"calc_ms"`
	RendererMs  float64 `json:"renderer_ms"`
	BroadcastMs float64 `json:"broadcast_ms"`
	TotalMs     float64 `json:"total_ms"`
	Entities    int     `json:"entities"`
}

// VJState is the full snapshot answered to get_state.
type VJState struct {
	Type               string          `json:"type"`
	Patterns           []PatternInfo   `json:"patterns"`
	CurrentPattern     string          `json:"current_pattern"`
	PatternConfig      PatternConfig   `json:"pattern_config"`
	EntityCount        int             `json:"entity_count"`
	Zone               string          `json:"zone"`
	DJRoster           []RosterEntry   `json:"dj_roster"`
	ActiveDJ           string          `json:"active_dj"`
	HealthStats        HealthStats     `json:"health_stats"`
	MinecraftConnected bool            `json:"minecraft_connected"`
	PendingDJs         []PendingEntry  `json:"pending_djs"`
	BannerProfiles     json.RawMessage `json:"banner_profiles"`
}

// PendingList answers get_pending_djs.
type PendingList struct {
	Type    string         `json:"type"`
	Pending []PendingEntry `json:"pending"`
}

// BannerProfileMsg answers get_banner_profile.
type BannerProfileMsg struct {
	Type    string `json:"type"`
	DJID    string `json:"dj_id"`
	Profile any    `json:"profile"`
}

// BannerProfileSaved confirms a profile mutation to all browsers.
type BannerProfileSaved struct {
	Type string `json:"type"`
	DJID string `json:"dj_id"`
}

// AllBannerProfiles answers get_all_banner_profiles.
type AllBannerProfiles struct {
	Type     string `json:"type"`
	Profiles any    `json:"profiles"`
}

// BannerLogoProcessed reports a completed logo downsample.
type BannerLogoProcessed struct {
	Type   string `json:"type"`
	DJID   string `json:"dj_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VoiceStatus relays a renderer voice-state reply to all browsers.
type VoiceStatus struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ForwardResult relays an allowlisted renderer command's outcome back to
// the requesting browser.
type ForwardResult struct {
	Type  string          `json:"type"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ZoneStatus carries tempo tracking fields in the per-frame state.
type ZoneStatus struct {
	BPMEstimate     float64 `json:"bpm_estimate"`
	TempoConfidence float64 `json:"tempo_confidence"`
	BeatPhase       float64 `json:"beat_phase"`
}

// StateFrame is the per-tick broadcast to every browser observer.
type StateFrame struct {
	Type          string     `json:"type"`
	Entities      []Entity   `json:"entities"`
	Bands         [5]float64 `json:"bands"`
	Amplitude     float64    `json:"amplitude"`
	IsBeat        bool       `json:"is_beat"`
	BeatIntensity float64    `json:"beat_intensity"`
	InstantBass   float64    `json:"instant_bass"`
	InstantKick   bool       `json:"instant_kick"`
	Frame         int64      `json:"frame"`
	Pattern       string     `json:"pattern"`
	ActiveDJ      string     `json:"active_dj"`
	LatencyMs     float64    `json:"latency_ms"`
	PingMs        float64    `json:"ping_ms"`
	PipelineMs    float64    `json:"pipeline_latency_ms"`
	FPS           float64    `json:"fps"`
	ZoneStatus    ZoneStatus `json:"zone_status"`
}
