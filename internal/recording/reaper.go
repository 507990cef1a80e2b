package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// StartReaper runs a background goroutine that drains the deletion queue on
// a fixed interval. Individual delete failures are logged and not retried.
// The goroutine stops when the provided context is cancelled.
func StartReaper(ctx context.Context, c *Catalog, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reap()
			}
		}
	}()
}

// reap removes every queued file, then clears the queue and the busy flag
// as one step so the next refresh may queue again.
func (c *Catalog) reap() {
	names := c.queue.Snapshot()
	if len(names) == 0 {
		return
	}

	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove recording file", "file", name, "error", err)
			continue
		}
		removed++
	}
	c.queue.Finish()

	c.mu.Lock()
	c.reaped += int64(removed)
	c.mu.Unlock()

	slog.Info("recording retention batch drained", "queued", len(names), "removed", removed)
}
