// Package server ties the VJ server together: the DJ admission and
// steady-state socket handlers, the browser/admin control plane, the
// browser fan-out hub, and the 60 Hz broadcast loop that composites
// pattern output with operator effects and forwards frames downstream.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/mcav/internal/auth"
	"github.com/MrWong99/mcav/internal/banner"
	"github.com/MrWong99/mcav/internal/connectcode"
	"github.com/MrWong99/mcav/internal/dj"
	"github.com/MrWong99/mcav/internal/effect"
	"github.com/MrWong99/mcav/internal/observe"
	"github.com/MrWong99/mcav/internal/pattern"
	"github.com/MrWong99/mcav/internal/renderer"
	"github.com/MrWong99/mcav/pkg/audio"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// AuthProvider returns the current credential store. Hot-reloaded by the
// auth watcher; nil means no credential file is configured.
type AuthProvider func() *auth.Store

// Options configures a [Server].
type Options struct {
	Log     *slog.Logger
	Metrics *observe.Metrics

	// Auth yields the credential store; RequireAuth rejects DJs whose
	// credentials do not verify instead of admitting them with defaults.
	Auth        AuthProvider
	RequireAuth bool

	// Renderer is the downstream client, nil when running without one.
	Renderer *renderer.Client

	// Banners is the per-DJ banner profile store.
	Banners *banner.Store

	// Zone is the initial renderer zone.
	Zone string

	// EntityCount, Pattern and Preset seed the visualization state.
	EntityCount int
	Pattern     string
	Preset      string

	// RendererHost and RendererPort are advertised to direct-mode DJs.
	RendererHost string
	RendererPort int
}

// Server owns all mutable state of the VJ relay.
type Server struct {
	log     *slog.Logger
	metrics *observe.Metrics

	authStore   AuthProvider
	requireAuth bool

	roster  *dj.Roster
	pending *dj.PendingQueue
	codes   *connectcode.Registry
	banners *banner.Store
	mc      *renderer.Client
	hub     *Hub

	viz     *vizState
	effects *effect.Compositor
	stats   *stats

	// Loop-owned pacing state; touched only by the broadcast goroutine.
	lastRendererSend time.Time
	pendingParticles []protocol.Particle

	rendererHost string
	rendererPort int
}

// New builds a server from opts. Missing options fall back to safe
// defaults so tests can construct servers with a minimal literal.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	name := opts.Pattern
	if name == "" {
		name = pattern.DefaultPattern
	}

	cfg := pattern.DefaultConfig()
	if opts.EntityCount > 0 {
		cfg.EntityCount = pattern.ClampEntityCount(opts.EntityCount)
	}
	preset := audio.LookupPreset(opts.Preset)
	cfg.ApplyPreset(preset)

	zone := opts.Zone
	if zone == "" {
		zone = "main"
	}

	s := &Server{
		log:          log,
		metrics:      m,
		authStore:    opts.Auth,
		requireAuth:  opts.RequireAuth,
		roster:       dj.NewRoster(),
		pending:      dj.NewPendingQueue(),
		codes:        connectcode.NewRegistry(),
		banners:      opts.Banners,
		mc:           opts.Renderer,
		hub:          NewHub(log),
		effects:      effect.NewCompositor(),
		stats:        newStats(),
		rendererHost: opts.RendererHost,
		rendererPort: opts.RendererPort,
	}
	s.viz = newVizState(name, cfg, preset, zone)
	return s
}

// Hub exposes the browser fan-out so the app can run its heartbeat.
func (s *Server) Hub() *Hub { return s.hub }

// OnRendererChange is wired into the renderer supervisor's transition
// callback: it mirrors connectivity to browsers and re-advertises the
// routing policy to all DJs.
func (s *Server) OnRendererChange(connected bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Broadcast(ctx, protocol.MinecraftStatus{Type: "minecraft_status", Connected: connected})
	s.broadcastStreamRoutes(ctx, "renderer_status")
}

// OnRendererReconnect is wired into the supervisor's reconnect callback:
// it re-initializes the entity pool for the current zone and counts the
// reconnect.
func (s *Server) OnRendererReconnect() {
	s.stats.mcReconnects.Add(1)
	if s.mc == nil {
		return
	}

	zone, count := s.viz.zoneAndCount()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.metrics.RendererReconnects.Add(ctx, 1)
	if err := s.mc.InitPool(ctx, zone, count); err != nil {
		s.log.Warn("pool re-init after reconnect failed", "zone", zone, "err", err)
	}
}
