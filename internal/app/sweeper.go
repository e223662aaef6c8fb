package app

import (
	"context"
	"time"

	"github.com/dkeye/duo/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically removes sessions that have been empty for longer
// than Retention.
type Sweeper struct {
	Sessions  *SessionRegistry
	Interval  time.Duration
	Retention time.Duration
	Metrics   *metrics.Metrics
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.sweeper").Dur("interval", s.Interval).Dur("retention", s.Retention).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass and returns the number of sessions removed. The
// emptiness check and the close happen under the session's own lock, so a
// session that just gained a member is left alone.
func (s *Sweeper) Sweep() int {
	now := s.Sessions.Now()
	removed := 0
	for _, sess := range s.Sessions.Snapshot() {
		if !sess.CloseIfIdle(now, s.Retention) {
			continue
		}
		if s.Sessions.RemoveSession(sess) {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Str("module", "app.sweeper").Int("removed", removed).Msg("swept idle sessions")
	}
	s.Metrics.Swept(removed)
	return removed
}
