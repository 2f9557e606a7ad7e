// Package reaper reconciles orphaned audio artifacts against the interaction
// table. A failed ask pipeline may leave an uploaded clip (or, rarely, a
// synthesized file) on disk with no interaction row referencing it; the
// reaper deletes such files once they are older than the retention window.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Referenced is the artifact lineage of one interaction row.
type Referenced struct {
	AudioPath *string
	TTSPath   *string
}

// Reaper periodically sweeps the artifact subtrees.
type Reaper struct {
	refs      func() (map[string]bool, error)
	dirs      []string
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// New creates a Reaper sweeping dirs. refs must return the set of artifact
// paths currently referenced by interaction rows. Files younger than
// retention are never touched, so in-flight pipeline runs cannot lose their
// uploads before the row is committed.
func New(refs func() (map[string]bool, error), dirs []string, interval, retention time.Duration) *Reaper {
	return &Reaper{
		refs:      refs,
		dirs:      dirs,
		interval:  interval,
		retention: retention,
		logger:    slog.Default(),
	}
}

// Run sweeps on every interval tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reaper sweep failed", "error", err)
			} else if removed > 0 {
				r.logger.Info("reaper sweep complete", "removed", removed)
			}
		}
	}
}

// RunOnce sweeps all subtrees once and returns how many orphans it removed.
// The subtrees are scanned concurrently.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	referenced, err := r.refs()
	if err != nil {
		return 0, fmt.Errorf("listing referenced artifacts: %w", err)
	}

	cutoff := time.Now().Add(-r.retention)

	g, ctx := errgroup.WithContext(ctx)
	results := make([]int, len(r.dirs))
	for i, dir := range r.dirs {
		g.Go(func() error {
			n, err := r.sweepDir(ctx, dir, referenced, cutoff)
			results[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range results {
		total += n
	}
	return total, nil
}

func (r *Reaper) sweepDir(ctx context.Context, dir string, referenced map[string]bool, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if referenced[path] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			r.logger.Warn("removing orphan failed", "path", path, "error", err)
			continue
		}
		r.logger.Debug("removed orphan artifact", "path", path)
		removed++
	}
	return removed, nil
}

// ReferencedPaths collects every artifact path referenced by interactions,
// paging through the store.
func ReferencedPaths(list func(limit, offset int) ([]Referenced, error)) (map[string]bool, error) {
	const page = 500
	refs := make(map[string]bool)
	for offset := 0; ; offset += page {
		rows, err := list(page, offset)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.AudioPath != nil {
				refs[*row.AudioPath] = true
			}
			if row.TTSPath != nil {
				refs[*row.TTSPath] = true
			}
		}
		if len(rows) < page {
			return refs, nil
		}
	}
}
