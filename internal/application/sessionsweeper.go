package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// SessionSweeper periodically removes expired sessions.
type SessionSweeper struct {
	auth     *AuthService
	clock    clockwork.Clock
	interval time.Duration
}

// NewSessionSweeper creates a sweeper that runs every interval.
func NewSessionSweeper(auth *AuthService, clock clockwork.Clock, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{auth: auth, clock: clock, interval: interval}
}

// Start sweeps immediately, then on every tick. Start blocks until the
// context is canceled.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.sweep(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	n, err := s.auth.SweepExpiredSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("session sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("expired sessions removed", "count", n)
	}
}
