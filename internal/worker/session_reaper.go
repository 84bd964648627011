package worker

import (
	"context"
	"time"
)

// IdleReaper closes sessions nobody touched for a while.
type IdleReaper interface {
	ReapIdle(maxIdle time.Duration) int
}

// RunSessionReaper calls ReapIdle every interval until ctx is done.
func RunSessionReaper(ctx context.Context, reaper IdleReaper, interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaper.ReapIdle(maxIdle)
		}
	}
}
