package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hackerdigest/pkg/digest"
)

// Fetcher retrieves candidate stories from the content source.
type Fetcher interface {
	Fetch(ctx context.Context, topK, minScore int, since time.Time) (map[string]digest.Item, error)
}

// SnapshotStore persists the daily candidate pool.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, date string, posts map[string]digest.Item) error
}

// Snapshotter fetches and records the day's candidate pool. The fetch is
// sized so every configured strategy can be satisfied from one pool: twice
// the largest top-N, and everything above the smallest threshold, looking
// back two days so late risers are not missed.
type Snapshotter struct {
	fetcher    Fetcher
	store      SnapshotStore
	strategies digest.StrategySet
	logger     *slog.Logger
}

// NewSnapshotter creates a snapshotter for the configured strategies.
func NewSnapshotter(fetcher Fetcher, store SnapshotStore, strategies digest.StrategySet, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{
		fetcher:    fetcher,
		store:      store,
		strategies: strategies,
		logger:     logger,
	}
}

// Snapshot fetches candidates for date and persists them.
func (s *Snapshotter) Snapshot(ctx context.Context, date time.Time) (map[string]digest.Item, error) {
	topK := 2 * s.strategies.MaxTopN()
	minScore := s.strategies.MinThreshold()
	since := date.AddDate(0, 0, -2)

	items, err := s.fetcher.Fetch(ctx, topK, minScore, since)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	datestamp := date.Format(time.DateOnly)
	if err := s.store.PutSnapshot(ctx, datestamp, items); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.Info("Snapshot recorded", "date", datestamp, "candidates", len(items))
	return items, nil
}
