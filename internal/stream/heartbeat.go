package stream

import (
	"time"

	"github.com/rs/zerolog/log"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // max time to wait for activity after ping (default: 10s)
}

// DefaultHeartbeatConfig returns the default heartbeat settings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// startHeartbeat begins a goroutine that periodically pings every viewer and
// closes those that have gone stale (no frames read within Interval +
// Timeout). The goroutine exits when the server shuts down.
func (s *Server) startHeartbeat(config HeartbeatConfig) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.checkConnections(config)
			}
		}
	}()
}

// checkConnections removes viewers that missed the deadline and sends a
// WebSocket ping to the rest. Browsers answer pings with a pong frame, which
// counts as activity.
func (s *Server) checkConnections(config HeartbeatConfig) {
	deadline := config.Interval + config.Timeout
	now := time.Now()

	for _, c := range s.conns.All() {
		if idle := now.Sub(c.LastActive()); idle > deadline {
			log.Info().Str("viewer", c.ID).Dur("idle", idle.Round(time.Second)).
				Msg("stream: heartbeat timeout")
			s.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Info().Str("viewer", c.ID).Err(err).Msg("stream: heartbeat ping failed")
			s.RemoveConnection(c)
		}
	}
}
