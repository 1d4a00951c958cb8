package setup

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
)

const sessionPurgeInterval = time.Hour

// startSessionPurger deletes expired sessions once per interval until the returned stop function is called.
func startSessionPurger(engine *game.Engine, interval time.Duration, logger *slog.Logger) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purgeSessions(ctx, engine, logger)
			}
		}
	}()
	return func() error {
		cancel()
		<-done
		return nil
	}
}

func purgeSessions(ctx context.Context, engine *game.Engine, logger *slog.Logger) {
	if _, err := engine.PurgeExpiredSessions(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.LogAttrs(ctx, slog.LevelError, "failed to purge expired sessions", errors.SlogError(err))
	}
}
