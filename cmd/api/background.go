package main

import (
	"context"
	"time"
)

// sweepEvery expires ended bookings and releases stale holds on a ticker, so
// slots free up even when nobody is booking. Zero disables it.
func (app *application) sweepEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		app.logger.Info("background sweep disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := app.allocator.Sweep(runCtx); err != nil {
				app.logger.Errorw("background sweep failed", "error", err)
			}
			cancel()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (app *application) pruneRateLimiterEvery(ctx context.Context) {
	if !app.config.RateLimiter.Enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := app.rateLimiter.Prune(); n > 0 {
					app.logger.Debugw("rate limiter pruned", "clients", n)
				}
			}
		}
	}()
}
