package maintenance

import (
	"context"
	"log/slog"
	"time"

	"readaloud/pkg/db"
	"readaloud/pkg/store"
)

const lastPruneStateKey = "maintenance.last_history_prune"

// minInterval keeps restarts in quick succession from pruning repeatedly.
const minInterval = 12 * time.Hour

// Run prunes synthesis history older than retention. It blocks until done.
// A non-positive retention keeps history forever.
func Run(ctx context.Context, s store.StateStore, d *db.DB, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	if last, ok := s.GetState(ctx, lastPruneStateKey); ok {
		if t, err := time.Parse(time.RFC3339, last); err == nil && time.Since(t) < minInterval {
			slog.Debug("History pruning skipped", "last_run", last)
			return nil
		}
	}

	slog.Info("Starting database maintenance...")
	n, err := d.PruneHistory(retention)
	if err != nil {
		slog.Error("History pruning failed", "error", err)
		return err
	}
	slog.Info("History pruning completed", "removed", n, "retention", retention)

	return s.SetState(ctx, lastPruneStateKey, time.Now().UTC().Format(time.RFC3339))
}
