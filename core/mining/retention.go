package mining

import (
	"context"
	"log/slog"
	"time"
)

type RetentionStore interface {
	// DeleteFinishedBefore removes terminal records created before border
	// and returns their ids. Running records are kept.
	DeleteFinishedBefore(ctx context.Context, border time.Time) ([]string, error)
}

// Reaper periodically removes finished tasks older than ttl.
type Reaper struct {
	store    RetentionStore
	archive  ArchiveCleaner
	ttl      time.Duration
	interval time.Duration
}

func NewReaper(store RetentionStore, archive ArchiveCleaner, ttl, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		store:    store,
		archive:  archive,
		ttl:      ttl,
		interval: interval,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	if r.ttl <= 0 {
		slog.Info("task retention disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(ctx, now)
			}
		}
	}()
}

// Sweep runs one retention pass and returns how many tasks were removed.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	ids, err := r.store.DeleteFinishedBefore(ctx, now.Add(-r.ttl))
	if err != nil {
		slog.Warn("cleanup tasks", slog.String("error", err.Error()))
		return 0
	}

	if r.archive != nil {
		for _, id := range ids {
			if err := r.archive.Delete(ctx, id); err != nil {
				slog.Warn("cleanup archived result", slog.String("task_id", id), slog.String("error", err.Error()))
			}
		}
	}

	if len(ids) > 0 {
		slog.Info("cleanup", slog.Int("deleted_tasks", len(ids)))
	}
	return len(ids)
}
