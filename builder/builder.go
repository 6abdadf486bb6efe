// Package builder computes and delivers the daily digests: snapshot the
// candidate pool, build one digest per strategy, and mail every subscriber.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"hackerdigest/pkg/digest"
)

// Store is the slice of storage the builder needs.
type Store interface {
	GetDigest(ctx context.Context, strategy digest.Strategy, date string) ([]digest.Item, error)
	PutDigest(ctx context.Context, strategy digest.Strategy, date string, posts []digest.Item) error
}

// Builder computes one strategy's digest for a day.
type Builder struct {
	store  Store
	logger *slog.Logger
}

// NewBuilder creates a digest builder.
func NewBuilder(store Store, logger *slog.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// Build computes and persists the digest for (strategy, date) from the
// candidate items. Stories that appeared in the previous day's digest for
// the same strategy are excluded so no subscriber sees a story twice. The
// result is persisted even when empty; an empty digest is the signal to
// skip sending.
func (b *Builder) Build(ctx context.Context, strategy digest.Strategy, date, prevDate string, items map[string]digest.Item) ([]digest.Item, error) {
	previous, err := b.store.GetDigest(ctx, strategy, prevDate)
	if err != nil {
		return nil, fmt.Errorf("load previous digest: %w", err)
	}
	excluded := make(map[string]bool, len(previous))
	for _, item := range previous {
		excluded[item.ID] = true
	}

	candidates := make([]digest.Item, 0, len(items))
	for id, item := range items {
		if !excluded[id] {
			candidates = append(candidates, item)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	selected := strategy.Select(candidates)
	if err := b.store.PutDigest(ctx, strategy, date, selected); err != nil {
		return nil, fmt.Errorf("save digest: %w", err)
	}

	b.logger.Info("Digest built",
		"strategy", strategy.String(),
		"date", date,
		"candidates", len(candidates),
		"excluded", len(excluded),
		"selected", len(selected))
	return selected, nil
}
