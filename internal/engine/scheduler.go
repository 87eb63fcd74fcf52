package engine

import (
	"context"
	"time"
)

// Schedule calls body once per period until body returns false or ctx is
// done. Ticks missed while body runs are dropped, not queued.
func Schedule(ctx context.Context, period time.Duration, body func() bool) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !body() {
				return
			}
		}
	}
}
