package engine

import (
	"context"
	"log"
	"time"
)

// StartSweep launches the background abandoned-match sweep. Every
// SweepInterval it dissolves matches whose last activity is older than the
// presence threshold and where neither side is still reachable. Returns
// when ctx is canceled.
func (c *Controller) StartSweep(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("[engine] sweep started interval=%s", c.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[engine] sweep stopped")
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Controller) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-c.cfg.PresenceThreshold).Unix()

	idle, err := c.matches.IdleSince(ctx, cutoff)
	if err != nil {
		log.Printf("[engine] sweep: list idle matches: %v", err)
		return
	}

	for _, m := range idle {
		aReachable, err := c.presence.IsReachable(ctx, m.UserA, c.cfg.PresenceThreshold)
		if err != nil {
			continue
		}
		bReachable, err := c.presence.IsReachable(ctx, m.UserB, c.cfg.PresenceThreshold)
		if err != nil {
			continue
		}
		// A match with one live side is left alone; a reconnecting client
		// resumes it, and a live partner is told via the normal paths.
		if aReachable || bReachable {
			continue
		}

		if _, err := c.dissolve(ctx, m.UserA, "sweep"); err != nil {
			log.Printf("[engine] sweep: dissolve %s/%s: %v", m.UserA, m.UserB, err)
			continue
		}
		_ = c.relay.Clear(ctx, m.UserB)
		_ = c.queue.Remove(ctx, m.UserB)
	}
}
