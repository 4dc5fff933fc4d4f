package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type expiredSessionPurger interface {
	PurgeExpired() error
}

// startSessionSweeper purges expired sessions on the given interval until ctx
// is cancelled. The returned stop function blocks until the sweeper exits and
// is safe to call more than once.
func startSessionSweeper(ctx context.Context, logger *slog.Logger, sessions expiredSessionPurger, interval time.Duration) func() {
	if sessions == nil || interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	return runSessionSweeper(ctx, logger, sessions, ticker.C, ticker.Stop)
}

func runSessionSweeper(ctx context.Context, logger *slog.Logger, sessions expiredSessionPurger, ticks <-chan time.Time, cleanup func()) func() {
	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if cleanup != nil {
			defer cleanup()
		}
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticks:
				if err := sessions.PurgeExpired(); err != nil && logger != nil {
					logger.Error("session sweep failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
