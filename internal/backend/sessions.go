package backend

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper deletes expired sessions.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// sweepSessions purges expired sessions every interval until ctx ends.
func sweepSessions(ctx context.Context, sweeper SessionSweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SweepExpiredSessions(ctx, sweeper, time.Now().UTC(), logger)
		}
	}
}

// SweepExpiredSessions deletes sessions that expired before now and returns how many went.
func SweepExpiredSessions(ctx context.Context, sweeper SessionSweeper, now time.Time, logger *slog.Logger) int64 {
	n, err := sweeper.DeleteExpiredSessions(ctx, now)
	if err != nil {
		logger.Error("failed to delete expired sessions", "error", err)
		return 0
	}
	if n > 0 {
		logger.Info("expired sessions deleted", "count", n)
	}
	return n
}
