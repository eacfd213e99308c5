package protocol

// ── DJ → server ───────────────────────────────────────────────────────────────

// DJAuth is the credentialed authentication request.
type DJAuth struct {
	Type       string `json:"type"`
	DJID       string `json:"dj_id"`
	DJKey      string `json:"dj_key"`
	DJName     string `json:"dj_name"`
	DirectMode Flag   `json:"direct_mode"`
}

// CodeAuth is the connect-code authentication request.
type CodeAuth struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	DJName     string `json:"dj_name"`
	DirectMode Flag   `json:"direct_mode"`
}

// DJAudioFrame is the per-tick analyzed-audio frame. All numeric fields
// are lenient; the sanitizer clamps them into range.
type DJAudioFrame struct {
	Type            string   `json:"type"`
	Seq             Number   `json:"seq"`
	Bands           []Number `json:"bands"`
	Peak            Number   `json:"peak"`
	Beat            Flag     `json:"beat"`
	BeatIntensity   Number   `json:"beat_intensity"`
	BPM             Number   `json:"bpm"`
	TempoConfidence Number   `json:"tempo_confidence"`
	BeatPhase       Number   `json:"beat_phase"`
	InstantBass     Number   `json:"instant_bass"`
	InstantKick     Flag     `json:"instant_kick"`
	TS              Number   `json:"ts"`
}

// DJHeartbeat is the periodic liveness frame from a DJ. TS is the DJ's
// send time in Unix seconds; MCConnected reports the DJ's own downstream
// renderer health when it publishes directly.
type DJHeartbeat struct {
	Type        string `json:"type"`
	TS          Number `json:"ts"`
	MCConnected *Flag  `json:"mc_connected,omitempty"`
}

// VoiceAudio carries an opaque base64 PCM payload relayed to the renderer
// while the sender is the active DJ.
type VoiceAudio struct {
	Type string `json:"type"`
	Seq  Number `json:"seq"`
	Data string `json:"data"`
}

// ClockSyncResponse is the DJ's reply in the four-timestamp clock sync
// exchange. Times are Unix seconds on the DJ's clock.
type ClockSyncResponse struct {
	Type       string `json:"type"`
	DJRecvTime Number `json:"dj_recv_time"`
	DJSendTime Number `json:"dj_send_time"`
}

// ── server → DJ ───────────────────────────────────────────────────────────────

// AuthPending tells a code-authenticated DJ it is waiting for operator
// approval.
type AuthPending struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	DJID    string `json:"dj_id"`
}

// AuthDenied carries the reason an authentication attempt was rejected.
type AuthDenied struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PatternConfig is the wire form of the pattern tuning block.
type PatternConfig struct {
	EntityCount   int     `json:"entity_count"`
	ZoneSize      float64 `json:"zone_size"`
	BeatBoost     float64 `json:"beat_boost"`
	BaseScale     float64 `json:"base_scale"`
	MaxScale      float64 `json:"max_scale"`
	Attack        float64 `json:"attack"`
	Release       float64 `json:"release"`
	BeatThreshold float64 `json:"beat_threshold"`
}

// AuthSuccess completes admission to the roster. Renderer coordinates are
// only meaningful to direct-mode DJs.
type AuthSuccess struct {
	Type           string        `json:"type"`
	DJID           string        `json:"dj_id"`
	DJName         string        `json:"dj_name"`
	IsActive       bool          `json:"is_active"`
	CurrentPattern string        `json:"current_pattern"`
	PatternConfig  PatternConfig `json:"pattern_config"`
	MinecraftHost  string        `json:"minecraft_host,omitempty"`
	MinecraftPort  int           `json:"minecraft_port,omitempty"`
	Zone           string        `json:"zone,omitempty"`
	EntityCount    int           `json:"entity_count,omitempty"`
}

// ClockSyncRequest opens the four-timestamp clock sync exchange.
// ServerTime is t1 in Unix seconds.
type ClockSyncRequest struct {
	Type       string  `json:"type"`
	ServerTime float64 `json:"server_time"`
}

// Route modes advertised to DJs.
const (
	RouteRelay = "relay"
	RouteDual  = "dual"
)

// StreamRoute pushes the routing policy and full visualization config to
// a DJ. Sent after auth, on every active-DJ change, and when the renderer
// reconnects.
type StreamRoute struct {
	Type            string             `json:"type"`
	RouteMode       string             `json:"route_mode"`
	IsActive        bool               `json:"is_active"`
	MinecraftHost   string             `json:"minecraft_host"`
	MinecraftPort   int                `json:"minecraft_port"`
	Zone            string             `json:"zone"`
	EntityCount     int                `json:"entity_count"`
	CurrentPattern  string             `json:"current_pattern"`
	PatternConfig   PatternConfig      `json:"pattern_config"`
	PatternScripts  map[string]string  `json:"pattern_scripts"`
	BandSensitivity [5]float64         `json:"band_sensitivity"`
	RelayFallback   bool               `json:"relay_fallback"`
	Reason          string             `json:"reason"`
}

// HeartbeatAck echoes a DJ heartbeat with the server receive time.
type HeartbeatAck struct {
	Type       string  `json:"type"`
	ServerTime float64 `json:"server_time"`
	EchoTS     float64 `json:"echo_ts"`
}

// PatternSync notifies DJs of a pattern change.
type PatternSync struct {
	Type    string        `json:"type"`
	Pattern string        `json:"pattern"`
	Config  PatternConfig `json:"config"`
}

// ConfigSync notifies DJs of a capacity or zone change.
type ConfigSync struct {
	Type        string `json:"type"`
	EntityCount int    `json:"entity_count"`
	Zone        string `json:"zone"`
}

// PresetSync pushes a changed audio preset to DJs.
type PresetSync struct {
	Type   string `json:"type"`
	Preset string `json:"preset"`
}

// StatusUpdate informs a DJ that its active status changed.
type StatusUpdate struct {
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

// BandSensitivitySync pushes the per-band sensitivity vector to DJs.
type BandSensitivitySync struct {
	Type        string     `json:"type"`
	Sensitivity [5]float64 `json:"sensitivity"`
}

// AudioSettingSync pushes a single audio tuning value to DJs.
type AudioSettingSync struct {
	Type    string  `json:"type"`
	Setting string  `json:"setting"`
	Value   float64 `json:"value"`
}
