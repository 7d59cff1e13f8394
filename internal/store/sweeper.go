package store

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically deletes kv
// entries under prefix that have not been written for ttl. It stops when ctx
// is cancelled; the returned channel is closed once it has exited.
func StartSweeper(ctx context.Context, sw Sweeper, prefix string, interval, ttl time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("KV sweeper started", "prefix", prefix, "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, sw, prefix, ttl)
			case <-ctx.Done():
				slog.Info("KV sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, sw Sweeper, prefix string, ttl time.Duration) {
	deleted, err := sw.CleanupExpired(ctx, prefix, ttl)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("KV sweeper cleanup failed", "prefix", prefix, "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("KV sweeper removed stale entries", "prefix", prefix, "count", deleted)
	}
}
