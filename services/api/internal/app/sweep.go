package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"studyhub/pkg/store"
)

// SweepPendingNotes deletes notes that still have no file after the pending
// TTL, freeing their quota slots. An upload still running past the TTL loses
// its record and removes its own blob when SetNoteBlob fails.
func (a *App) SweepPendingNotes(ctx context.Context) (int, error) {
	cutoff := a.timestamp().Add(-a.pendingTTL)
	stale, err := a.store.ListPendingNotes(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list pending notes: %w", err)
	}
	removed := 0
	for _, n := range stale {
		if err := a.store.DeleteNote(ctx, n.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("delete pending note %s: %w", n.ID, err)
		}
		removed++
	}
	if removed > 0 {
		slog.Info("released pending notes", "count", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// RunPendingNoteSweep sweeps every interval until ctx is done.
func (a *App) RunPendingNoteSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.SweepPendingNotes(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("pending note sweep failed", "err", err)
				}
			}
		}
	}()
}
