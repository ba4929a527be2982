package gateway

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// maintenance runs the periodic background jobs: expired session cleanup and
// the provider health probe that feeds the cached health map.
type maintenance struct {
	cron *cron.Cron
}

func (s *Server) startMaintenance() {
	c := cron.New()

	cleanupSpec := s.cfg.Maint.SessionCleanup
	if cleanupSpec == "" {
		cleanupSpec = "@every 5m"
	}
	if _, err := c.AddFunc(cleanupSpec, func() {
		s.sessions.CleanupExpired()
	}); err != nil {
		s.logger.Error().Err(err).Str("spec", cleanupSpec).Msg("Invalid session cleanup schedule")
	}

	probeSpec := s.cfg.Maint.HealthProbe
	if probeSpec == "" {
		probeSpec = "@every 2m"
	}
	if _, err := c.AddFunc(probeSpec, s.refreshHealth); err != nil {
		s.logger.Error().Err(err).Str("spec", probeSpec).Msg("Invalid health probe schedule")
	}

	c.Start()
	s.maint = &maintenance{cron: c}
	s.logger.Info().Str("cleanup", cleanupSpec).Str("probe", probeSpec).Msg("Maintenance jobs scheduled")
}

func (s *Server) stopMaintenance() {
	if s.maint == nil {
		return
	}
	ctx := s.maint.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn().Msg("Maintenance jobs did not stop in time")
	}
	s.maint = nil
}

// refreshHealth probes every provider and caches the result. Web provider
// probes touch the page, so status requests read the cache instead of probing
// inline.
func (s *Server) refreshHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := s.registry.HealthAll(ctx)

	s.healthMu.Lock()
	s.health = results
	s.healthMu.Unlock()
}

// healthSnapshot returns the cached health map.
func (s *Server) healthSnapshot() map[string]bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	snapshot := make(map[string]bool, len(s.health))
	for name, ok := range s.health {
		snapshot[name] = ok
	}
	return snapshot
}
