package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// TickFunc is one unit of scheduled work.
type TickFunc func(ctx context.Context) error

// RunSingleFlight runs fn repeatedly until ctx is cancelled. The next tick
// starts only after the previous one has returned and the remainder of
// interval has elapsed, so ticks never overlap. A tick that errors or
// panics is logged and the loop carries on.
func RunSingleFlight(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, fn TickFunc) error {
	log := logger.With(slog.String("loop", name))
	log.InfoContext(ctx, "loop starting", slog.Duration("interval", interval))

	for {
		started := time.Now()
		if err := runTick(ctx, fn); err != nil && ctx.Err() == nil {
			log.ErrorContext(ctx, "tick failed", slog.String("error", err.Error()))
		}

		wait := interval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.InfoContext(ctx, "loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func runTick(ctx context.Context, fn TickFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
