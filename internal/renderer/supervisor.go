package renderer

import (
	"context"
	"log/slog"
	"time"
)

const (
	pollInterval   = 5 * time.Second
	initialBackoff = 5 * time.Second
	backoffFactor  = 1.5
	maxBackoff     = 10 * time.Second
)

// Supervisor keeps the renderer connection alive. It polls the client,
// reconnects with growing backoff when the socket is down, and invokes
// OnChange on every connectivity transition so the server can fan out
// status and routing updates.
type Supervisor struct {
	client *Client
	log    *slog.Logger

	// OnChange fires on every transition; connected reflects the new
	// state. Called from the supervisor goroutine.
	OnChange func(connected bool)

	// OnReconnect fires after each successful reconnect, for counters.
	OnReconnect func()
}

// NewSupervisor wraps client.
func NewSupervisor(client *Client, log *slog.Logger) *Supervisor {
	return &Supervisor{
		client: client,
		log:    log.With("component", "renderer-supervisor"),
	}
}

// Run supervises until ctx is done. It assumes the client starts
// disconnected; the first connect attempt happens immediately.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := time.Duration(0)
	wasConnected := s.client.Connected()

	for {
		if s.client.Connected() {
			if !wasConnected {
				wasConnected = true
				s.notify(true)
			}
			backoff = 0
			if err := sleep(ctx, pollInterval); err != nil {
				return err
			}
			continue
		}

		if wasConnected {
			wasConnected = false
			s.log.Warn("renderer connection lost")
			s.notify(false)
		}

		if backoff > 0 {
			s.log.Info("waiting before renderer reconnect", "backoff", backoff)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
		}

		if err := s.client.Connect(ctx); err != nil {
			s.log.Warn("renderer connect failed", "error", err)
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = 0
		wasConnected = true
		if s.OnReconnect != nil {
			s.OnReconnect()
		}
		s.notify(true)
	}
}

func (s *Supervisor) notify(connected bool) {
	if s.OnChange != nil {
		s.OnChange(connected)
	}
}

// nextBackoff advances the reconnect delay: 5 s, then ×1.5 per failure,
// capped at 10 s.
func nextBackoff(cur time.Duration) time.Duration {
	if cur <= 0 {
		return initialBackoff
	}
	next := time.Duration(float64(cur) * backoffFactor)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
