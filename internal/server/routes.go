package server

import (
	"context"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mcav/internal/dj"
	"github.com/MrWong99/mcav/pkg/protocol"
)

// djSendTimeout bounds every server→DJ write. A DJ socket that cannot
// take a control message within it is considered broken; its read loop
// will observe the closure and run the normal cleanup path.
const djSendTimeout = 5 * time.Second

// routeMode computes the advertised routing policy: a direct-mode DJ
// publishes downstream itself only while it is the active one.
func routeMode(directMode, active bool) string {
	if directMode && active {
		return protocol.RouteDual
	}
	return protocol.RouteRelay
}

// buildStreamRoute assembles the full routing advertisement for one DJ.
func (s *Server) buildStreamRoute(c *dj.Conn, reason string) protocol.StreamRoute {
	s.viz.mu.Lock()
	current := s.viz.engine.CurrentName()
	cfg := s.viz.cfg
	sens := s.viz.sensitivity
	zone := s.viz.zone
	s.viz.mu.Unlock()

	active := s.roster.ActiveID() == c.ID
	mode := routeMode(c.DirectMode, active)

	return protocol.StreamRoute{
		Type:            "stream_route",
		RouteMode:       mode,
		IsActive:        active,
		MinecraftHost:   s.rendererHost,
		MinecraftPort:   s.rendererPort,
		Zone:            zone,
		EntityCount:     cfg.EntityCount,
		CurrentPattern:  current,
		PatternConfig:   cfg.Wire(),
		PatternScripts:  map[string]string{},
		BandSensitivity: sens,
		RelayFallback:   c.DirectMode && mode == protocol.RouteRelay,
		Reason:          reason,
	}
}

// sendStreamRoute pushes the routing policy to a single DJ.
func (s *Server) sendStreamRoute(ctx context.Context, c *dj.Conn, reason string) {
	s.sendToDJ(ctx, c, s.buildStreamRoute(c, reason))
}

// broadcastStreamRoutes re-advertises the routing policy to every DJ in
// the roster. Called on active-DJ changes and renderer transitions so
// ex-active DJs fall back to relay and the new active starts dual.
func (s *Server) broadcastStreamRoutes(ctx context.Context, reason string) {
	for _, c := range s.roster.List() {
		s.sendStreamRoute(ctx, c, reason)
	}
}

// sendToDJ writes one control message to a DJ with the send timeout.
// Errors are logged at debug level only; the DJ's own read loop owns the
// disconnect handling.
func (s *Server) sendToDJ(ctx context.Context, c *dj.Conn, v any) {
	data, err := protocol.Marshal(v)
	if err != nil {
		s.log.Error("dj message marshal failed", "err", err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, djSendTimeout)
	defer cancel()
	if err := c.Sock.Write(wctx, websocket.MessageText, data); err != nil {
		s.log.Debug("dj send failed", "dj_id", c.ID, "err", err)
	}
}

// broadcastToDJs sends one message to every admitted DJ.
func (s *Server) broadcastToDJs(ctx context.Context, v any) {
	for _, c := range s.roster.List() {
		s.sendToDJ(ctx, c, v)
	}
}

// broadcastRoster mirrors the roster to every browser.
func (s *Server) broadcastRoster(ctx context.Context) {
	s.hub.Broadcast(ctx, protocol.DJRoster{
		Type:     "dj_roster",
		Roster:   s.rosterEntries(),
		ActiveDJ: s.roster.ActiveID(),
	})
}
