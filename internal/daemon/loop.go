package daemon

import (
	"context"
	"time"
)

// pollLoop promotes pending files whose quiet period has elapsed.
func (d *Daemon) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.detector.PromoteReady(ctx, d.now())
		}
	}
}
