// Package retention purges the records of visitors who stopped coming back.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/move-it/website/internal/store"
)

// PurgeCallback is called before a visitor's records are deleted, so live
// sessions can be closed first.
type PurgeCallback func(visitorID string)

// StartWorker runs a background goroutine that every interval deletes
// visitors idle for longer than ttl. It stops when ctx is done.
func StartWorker(ctx context.Context, repo store.Repository, interval, ttl time.Duration, onPurge PurgeCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, ttl, onPurge)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one purge pass and returns how many visitors were deleted.
func Sweep(ctx context.Context, repo store.Repository, ttl time.Duration, onPurge PurgeCallback) int {
	expired, err := repo.GetExpiredVisitors(ctx, ttl)
	if err != nil {
		slog.Error("Retention worker failed to get expired visitors", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("Retention worker found expired visitors", "count", len(expired))

	deleted := 0
	for _, v := range expired {
		if ctx.Err() != nil {
			slog.Debug("Retention worker: context canceled, sweep incomplete", "deleted", deleted)
			break
		}
		if onPurge != nil {
			onPurge(v.VisitorID)
		}
		// DeleteVisitor retries SQLITE_BUSY itself.
		if err := repo.DeleteVisitor(ctx, v.VisitorID); err != nil {
			slog.Warn("Retention worker failed to delete visitor",
				"error", err,
				"visitor_id", v.VisitorID,
				"idle", v.IdleFor(time.Now()))
			continue
		}
		deleted++
	}

	slog.Info("Retention worker sweep completed", "deleted", deleted)
	return deleted
}
