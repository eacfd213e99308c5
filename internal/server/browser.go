package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mcav/internal/banner"
	"github.com/MrWong99/mcav/internal/effect"
	"github.com/MrWong99/mcav/internal/pattern"
	"github.com/MrWong99/mcav/internal/sanitize"
	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// browserReadLimit caps inbound admin frames at 256 KiB; banner logo
// uploads carry base64 image payloads.
const browserReadLimit = 256 << 10

// rendererForwardTimeout bounds every admin-initiated renderer round trip.
const rendererForwardTimeout = 5 * time.Second

// forwardable is the allowlist of admin commands relayed to the renderer
// as-is. Everything else is handled locally or rejected.
var forwardable = map[string]bool{
	"set_zone_config":   true,
	"set_render_mode":   true,
	"get_render_modes":  true,
	"init_pool":         true,
	"cleanup_zone":      true,
	"get_zones":         true,
	"particle_config":   true,
	"hologram_config":   true,
	"glow_config":       true,
	"brightness_config": true,
	"banner_config":     true,
}

// HandleBrowser upgrades and serves one browser/admin WebSocket.
func (s *Server) HandleBrowser(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Debug("browser accept failed", "err", err)
		return
	}
	sock.SetReadLimit(browserReadLimit)

	s.serveBrowser(r.Context(), sock)
}

func (s *Server) serveBrowser(ctx context.Context, sock *websocket.Conn) {
	obs := s.hub.Add(sock)
	s.stats.browserConnects.Add(1)
	s.metrics.ConnectedBrowsers.Add(ctx, 1)
	s.log.Info("browser connected", "browsers", s.hub.Len())

	defer func() {
		s.hub.Remove(obs)
		s.stats.browserDisconnects.Add(1)
		s.metrics.ConnectedBrowsers.Add(ctx, -1)
		s.log.Info("browser disconnected", "browsers", s.hub.Len())
	}()

	for {
		typ, data, err := sock.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var req protocol.AdminRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
			s.replyError(ctx, obs, "invalid message")
			continue
		}
		s.dispatchAdmin(ctx, obs, &req, data)
	}
}

// dispatchAdmin routes one admin request. raw carries the original frame
// for allowlisted passthrough commands.
func (s *Server) dispatchAdmin(ctx context.Context, obs *Observer, req *protocol.AdminRequest, raw []byte) {
	switch req.Type {
	case "ping":
		_ = obs.SendJSON(ctx, protocol.Pong{Type: "pong"})
	case "pong":
		s.hub.NotePong(obs)

	case "get_state":
		_ = obs.SendJSON(ctx, s.vjState())

	case "set_pattern":
		s.adminSetPattern(ctx, obs, req.Pattern)
	case "set_preset":
		s.adminSetPreset(ctx, obs, req.Preset)
	case "set_band_sensitivity":
		s.adminSetBandSensitivity(ctx, req.Sensitivity)
	case "set_audio_setting":
		s.adminSetAudioSetting(ctx, req.Setting, req.Value.Float())

	case "set_entity_count":
		s.adminSetEntityCount(ctx, int(req.Count.Float()))
	case "set_zone":
		s.adminSetZone(ctx, req.Zone)

	case "set_active_dj":
		s.adminSetActiveDJ(ctx, obs, req.DJID)
	case "kick_dj":
		s.adminKickDJ(req.DJID)
	case "approve_dj":
		if s.pending.Approve(req.DJID) == nil {
			s.log.Warn("approve for unknown pending dj", "dj_id", req.DJID)
		}
	case "deny_dj":
		if s.pending.Deny(req.DJID) == nil {
			s.log.Warn("deny for unknown pending dj", "dj_id", req.DJID)
		}
	case "reorder_dj_queue":
		s.roster.Reorder(req.Order)
		s.broadcastRoster(ctx)
	case "get_dj_roster":
		_ = obs.SendJSON(ctx, protocol.DJRoster{
			Type:     "dj_roster",
			Roster:   s.rosterEntries(),
			ActiveDJ: s.roster.ActiveID(),
		})
	case "get_pending_djs":
		_ = obs.SendJSON(ctx, protocol.PendingList{Type: "pending_djs", Pending: s.pendingEntries()})

	case "generate_connect_code":
		s.adminGenerateCode(ctx, obs, req.TTLMinutes.Float())
	case "get_connect_codes":
		s.codes.GC()
		_ = obs.SendJSON(ctx, s.codeListing())
	case "revoke_connect_code":
		if !s.codes.Revoke(req.Code) {
			s.log.Warn("revoke for unknown connect code")
		}
		s.hub.Broadcast(ctx, s.codeListing())

	case "trigger_effect":
		s.adminTriggerEffect(ctx, obs, req.Effect, req.Intensity, req.DurationMs)
	case "blackout", "freeze":
		s.adminTriggerEffect(ctx, obs, req.Type, req.Intensity, req.DurationMs)

	case "set_banner_profile":
		s.adminSetBannerProfile(ctx, obs, req.DJID, req.Profile)
	case "get_banner_profile":
		s.adminGetBannerProfile(ctx, obs, req.DJID)
	case "get_all_banner_profiles":
		s.adminAllBannerProfiles(ctx, obs)
	case "upload_banner_logo":
		s.adminUploadLogo(ctx, obs, req)

	case "voice_config", "get_voice_status":
		s.adminVoice(ctx, obs, req.Type, raw)

	default:
		if forwardable[req.Type] {
			s.adminForward(ctx, obs, req.Type, raw)
			return
		}
		s.replyError(ctx, obs, "unknown command: "+req.Type)
	}
}

func (s *Server) replyError(ctx context.Context, obs *Observer, msg string) {
	_ = obs.SendJSON(ctx, protocol.ErrorMessage{Type: "error", Error: msg})
}

func (s *Server) adminSetPattern(ctx context.Context, obs *Observer, name string) {
	if !pattern.Known(name) {
		s.replyError(ctx, obs, "unknown pattern: "+name)
		return
	}

	s.viz.mu.Lock()
	changed := s.viz.engine.SetPattern(name, time.Now())
	current := s.viz.engine.CurrentName()
	cfg := s.viz.cfg.Wire()
	s.viz.mu.Unlock()
	if !changed {
		return
	}

	s.metrics.RecordPatternChange(ctx, current)
	s.log.Info("pattern changed", "pattern", current)
	s.hub.Broadcast(ctx, protocol.PatternChanged{Type: "pattern_changed", Pattern: current, Config: cfg})
	s.broadcastToDJs(ctx, protocol.PatternSync{Type: "pattern_sync", Pattern: current, Config: cfg})
}

// presetOverride is the raw-dict form of set_preset.
type presetOverride struct {
	Attack        *float64  `json:"attack"`
	Release       *float64  `json:"release"`
	BeatThreshold *float64  `json:"beat_threshold"`
	Sensitivity   []float64 `json:"sensitivity"`
}

func (s *Server) adminSetPreset(ctx context.Context, obs *Observer, raw json.RawMessage) {
	if len(raw) == 0 {
		s.replyError(ctx, obs, "preset missing")
		return
	}

	var name string
	var sens [audio.NumBands]float64
	if err := json.Unmarshal(raw, &name); err == nil {
		p := audio.LookupPreset(name)
		name = p.Name
		sens = p.Sensitivity
		s.viz.mu.Lock()
		s.viz.cfg.ApplyPreset(p)
		s.viz.sensitivity = p.Sensitivity
		s.viz.preset = p.Name
		s.viz.mu.Unlock()
	} else {
		var o presetOverride
		if err := json.Unmarshal(raw, &o); err != nil {
			s.replyError(ctx, obs, "malformed preset")
			return
		}
		name = "custom"
		s.viz.mu.Lock()
		if o.Attack != nil {
			s.viz.cfg.Attack = sanitize.ClampFinite(*o.Attack, 0.01, 1, s.viz.cfg.Attack)
		}
		if o.Release != nil {
			s.viz.cfg.Release = sanitize.ClampFinite(*o.Release, 0.01, 1, s.viz.cfg.Release)
		}
		if o.BeatThreshold != nil {
			s.viz.cfg.BeatThreshold = sanitize.ClampFinite(*o.BeatThreshold, 0.5, 3, s.viz.cfg.BeatThreshold)
		}
		for i := 0; i < audio.NumBands && i < len(o.Sensitivity); i++ {
			s.viz.sensitivity[i] = sanitize.ClampFinite(o.Sensitivity[i], 0, 5, 1)
		}
		s.viz.preset = name
		sens = s.viz.sensitivity
		s.viz.mu.Unlock()
	}

	s.log.Info("preset changed", "preset", name)
	s.hub.Broadcast(ctx, protocol.PresetChanged{Type: "preset_changed", Preset: name, Sensitivity: sens})
	s.broadcastToDJs(ctx, protocol.PresetSync{Type: "preset_sync", Preset: name})
	s.broadcastToDJs(ctx, protocol.BandSensitivitySync{Type: "band_sensitivity_sync", Sensitivity: sens})
}

func (s *Server) adminSetBandSensitivity(ctx context.Context, values []protocol.Number) {
	s.viz.mu.Lock()
	for i := 0; i < audio.NumBands && i < len(values); i++ {
		s.viz.sensitivity[i] = sanitize.ClampFinite(values[i].Float(), 0, 5, 1)
	}
	sens := s.viz.sensitivity
	s.viz.mu.Unlock()

	s.broadcastToDJs(ctx, protocol.BandSensitivitySync{Type: "band_sensitivity_sync", Sensitivity: sens})
}

func (s *Server) adminSetAudioSetting(ctx context.Context, setting string, value float64) {
	s.viz.mu.Lock()
	switch setting {
	case "attack":
		s.viz.cfg.Attack = sanitize.ClampFinite(value, 0.01, 1, s.viz.cfg.Attack)
		value = s.viz.cfg.Attack
	case "release":
		s.viz.cfg.Release = sanitize.ClampFinite(value, 0.01, 1, s.viz.cfg.Release)
		value = s.viz.cfg.Release
	case "beat_threshold":
		s.viz.cfg.BeatThreshold = sanitize.ClampFinite(value, 0.5, 3, s.viz.cfg.BeatThreshold)
		value = s.viz.cfg.BeatThreshold
	}
	s.viz.mu.Unlock()

	s.broadcastToDJs(ctx, protocol.AudioSettingSync{Type: "audio_setting_sync", Setting: setting, Value: value})
}

func (s *Server) adminSetEntityCount(ctx context.Context, n int) {
	n = pattern.ClampEntityCount(n)

	s.viz.mu.Lock()
	s.viz.cfg.EntityCount = n
	zone := s.viz.zone
	s.viz.mu.Unlock()

	if s.mc != nil {
		rctx, cancel := context.WithTimeout(ctx, rendererForwardTimeout)
		if err := s.mc.InitPool(rctx, zone, n); err != nil {
			s.log.Warn("pool re-init failed", "err", err)
		}
		cancel()
	}

	s.log.Info("entity count changed", "count", n)
	s.hub.Broadcast(ctx, protocol.ConfigUpdate{Type: "config_update", EntityCount: n, Zone: zone})
	s.broadcastToDJs(ctx, protocol.ConfigSync{Type: "config_sync", EntityCount: n, Zone: zone})
}

func (s *Server) adminSetZone(ctx context.Context, zone string) {
	if zone == "" {
		return
	}

	s.viz.mu.Lock()
	old := s.viz.zone
	if zone == old {
		s.viz.mu.Unlock()
		return
	}
	s.viz.zone = zone
	count := s.viz.cfg.EntityCount
	s.viz.mu.Unlock()

	if s.mc != nil {
		s.mc.SetZone(zone)
		rctx, cancel := context.WithTimeout(ctx, 2*rendererForwardTimeout)
		if err := s.mc.CleanupZone(rctx, old); err != nil {
			s.log.Warn("zone cleanup failed", "zone", old, "err", err)
		}
		if err := s.mc.InitPool(rctx, zone, count); err != nil {
			s.log.Warn("pool init failed", "zone", zone, "err", err)
		}
		cancel()
	}

	s.log.Info("zone changed", "zone", zone)
	s.hub.Broadcast(ctx, protocol.ConfigUpdate{Type: "config_update", EntityCount: count, Zone: zone})
	s.broadcastToDJs(ctx, protocol.ConfigSync{Type: "config_sync", EntityCount: count, Zone: zone})
}

func (s *Server) adminSetActiveDJ(ctx context.Context, obs *Observer, id string) {
	if err := s.roster.SetActive(id); err != nil {
		s.log.Warn("set_active_dj for unknown dj", "dj_id", id)
		s.replyError(ctx, obs, "unknown dj: "+id)
		return
	}

	s.log.Info("active dj changed", "dj_id", id)
	for _, c := range s.roster.List() {
		s.sendToDJ(ctx, c, protocol.StatusUpdate{Type: "status_update", IsActive: c.ID == id})
	}
	s.broadcastStreamRoutes(ctx, "active_dj_changed")
	s.broadcastRoster(ctx)
}

func (s *Server) adminKickDJ(id string) {
	c, ok := s.roster.Get(id)
	if !ok {
		s.log.Warn("kick for unknown dj", "dj_id", id)
		return
	}
	// Cleanup runs in the DJ's own handler once the read loop observes
	// the closure.
	_ = c.Sock.Close(protocol.CloseKicked, "kicked by operator")
}

func (s *Server) adminGenerateCode(ctx context.Context, obs *Observer, ttlMinutes float64) {
	s.codes.GC()

	var ttl time.Duration
	if finite(ttlMinutes) && ttlMinutes > 0 {
		ttl = time.Duration(ttlMinutes * float64(time.Minute))
	}
	code, err := s.codes.Generate(ttl)
	if err != nil {
		s.replyError(ctx, obs, "code generation failed")
		return
	}

	_ = obs.SendJSON(ctx, protocol.ConnectCodeGenerated{
		Type:      "connect_code_generated",
		Code:      code.Code,
		ExpiresAt: unixSeconds(code.ExpiresAt),
	})
	s.hub.Broadcast(ctx, s.codeListing())
}

func (s *Server) codeListing() protocol.ConnectCodes {
	codes := s.codes.List()
	out := protocol.ConnectCodes{Type: "connect_codes", Codes: make([]protocol.CodeEntry, 0, len(codes))}
	for _, c := range codes {
		out.Codes = append(out.Codes, protocol.CodeEntry{
			Code:      c.Code,
			CreatedAt: unixSeconds(c.CreatedAt),
			ExpiresAt: unixSeconds(c.ExpiresAt),
			Used:      c.Used,
		})
	}
	return out
}

// adminTriggerEffect handles trigger_effect and the blackout/freeze
// shortcuts. Absent intensity defaults to full; absent duration to one
// second.
func (s *Server) adminTriggerEffect(ctx context.Context, obs *Observer, name string, intensity, durationMs *protocol.Number) {
	in := 1.0
	if intensity != nil {
		in = sanitize.ClampFinite(intensity.Float(), 0, 1, 1)
	}
	dur := 1000.0
	if durationMs != nil {
		dur = sanitize.ClampFinite(durationMs.Float(), 0, 60_000, 1000)
	}

	vis, err := s.effects.Trigger(name, in, dur)
	if err != nil {
		s.replyError(ctx, obs, "unknown effect: "+name)
		return
	}
	s.applyVisibility(ctx, vis)

	s.metrics.RecordEffect(ctx, name)
	s.log.Info("effect triggered", "effect", name, "intensity", in)
	s.hub.Broadcast(ctx, protocol.EffectTriggered{
		Type:       "effect_triggered",
		Effect:     name,
		Intensity:  in,
		DurationMs: dur,
	})
}

// applyVisibility performs the renderer side-effect demanded by a
// blackout transition.
func (s *Server) applyVisibility(ctx context.Context, vis effect.Visibility) {
	if vis == effect.VisibilityUnchanged || s.mc == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, rendererForwardTimeout)
	defer cancel()
	if err := s.mc.SetVisible(rctx, vis == effect.VisibilityShow); err != nil {
		s.log.Warn("set_visible failed", "err", err)
	}
}

func (s *Server) adminSetBannerProfile(ctx context.Context, obs *Observer, djID string, raw json.RawMessage) {
	if s.banners == nil || djID == "" {
		s.replyError(ctx, obs, "banner profiles unavailable")
		return
	}
	var p banner.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		s.replyError(ctx, obs, "malformed banner profile")
		return
	}

	s.banners.Set(djID, p)
	if err := s.banners.Save(); err != nil {
		// In-memory state stays authoritative.
		s.log.Warn("banner profile save failed", "err", err)
	}
	s.hub.Broadcast(ctx, protocol.BannerProfileSaved{Type: "banner_profile_saved", DJID: djID})
}

func (s *Server) adminGetBannerProfile(ctx context.Context, obs *Observer, djID string) {
	if s.banners == nil {
		s.replyError(ctx, obs, "banner profiles unavailable")
		return
	}
	p, ok := s.banners.Get(djID)
	if !ok {
		p = banner.DefaultProfile()
	}
	_ = obs.SendJSON(ctx, protocol.BannerProfileMsg{Type: "banner_profile", DJID: djID, Profile: p})
}

func (s *Server) adminAllBannerProfiles(ctx context.Context, obs *Observer) {
	if s.banners == nil {
		s.replyError(ctx, obs, "banner profiles unavailable")
		return
	}
	_ = obs.SendJSON(ctx, protocol.AllBannerProfiles{Type: "all_banner_profiles", Profiles: s.banners.Summaries()})
}

func (s *Server) adminUploadLogo(ctx context.Context, obs *Observer, req *protocol.AdminRequest) {
	if s.banners == nil || req.DJID == "" {
		s.replyError(ctx, obs, "banner profiles unavailable")
		return
	}

	w, h := banner.ClampGrid(int(req.Width.Float()), int(req.Height.Float()))
	pixels, err := banner.ProcessLogo(req.Image, w, h)
	if err != nil {
		s.replyError(ctx, obs, "logo processing failed: "+err.Error())
		return
	}

	s.banners.SetLogo(req.DJID, pixels, w, h, "upload")
	if err := s.banners.Save(); err != nil {
		s.log.Warn("banner profile save failed", "err", err)
	}
	s.hub.Broadcast(ctx, protocol.BannerLogoProcessed{
		Type:   "banner_logo_processed",
		DJID:   req.DJID,
		Width:  w,
		Height: h,
	})
}

// adminVoice forwards voice control to the renderer and mirrors the
// reply to every browser.
func (s *Server) adminVoice(ctx context.Context, obs *Observer, msgType string, raw []byte) {
	if s.mc == nil {
		s.replyError(ctx, obs, "renderer unavailable")
		return
	}
	resp, err := s.mc.Forward(ctx, msgType, raw)
	if err != nil {
		s.replyError(ctx, obs, "voice request failed: "+err.Error())
		return
	}
	s.hub.Broadcast(ctx, protocol.VoiceStatus{Type: "voice_status", Data: resp.Data})
}

// zoneConfigMirror is the subset of set_zone_config mirrored into the
// local pattern config so subsequent evaluations match the renderer.
type zoneConfigMirror struct {
	EntityCount *protocol.Number `json:"entity_count"`
	BaseScale   *protocol.Number `json:"base_scale"`
	MaxScale    *protocol.Number `json:"max_scale"`
}

// adminForward relays an allowlisted command to the renderer unchanged.
func (s *Server) adminForward(ctx context.Context, obs *Observer, msgType string, raw []byte) {
	if msgType == "set_zone_config" {
		var m zoneConfigMirror
		if err := json.Unmarshal(raw, &m); err == nil {
			s.viz.mu.Lock()
			if m.EntityCount != nil && finite(m.EntityCount.Float()) {
				s.viz.cfg.EntityCount = pattern.ClampEntityCount(int(m.EntityCount.Float()))
			}
			if m.BaseScale != nil {
				s.viz.cfg.BaseScale = sanitize.ClampFinite(m.BaseScale.Float(), 0.01, 4, s.viz.cfg.BaseScale)
			}
			if m.MaxScale != nil {
				s.viz.cfg.MaxScale = sanitize.ClampFinite(m.MaxScale.Float(), 0.01, 4, s.viz.cfg.MaxScale)
			}
			s.viz.mu.Unlock()
		}
	}

	if s.mc == nil {
		s.replyError(ctx, obs, "renderer unavailable")
		return
	}

	resp, err := s.mc.Forward(ctx, msgType, raw)
	result := protocol.ForwardResult{Type: msgType + "_result", OK: err == nil, Data: resp.Data}
	if err != nil {
		result.Error = err.Error()
	}
	_ = obs.SendJSON(ctx, result)
}
