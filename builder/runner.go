package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hackerdigest/mailer"
	"hackerdigest/pkg/digest"
)

// sendConcurrency caps how many digest emails are in flight at once.
const sendConcurrency = 8

// SubscriberStore lists the subscribers a run delivers to.
type SubscriberStore interface {
	ListSubscribers(ctx context.Context) ([]digest.Subscriber, error)
}

// DigestMailer renders and sends digests.
type DigestMailer interface {
	RenderDigest(date time.Time, strategyDesc string, posts []digest.Item) (*mailer.Digest, error)
	SendDigest(ctx context.Context, d *mailer.Digest, email, unsubscribeURL string) error
}

// Runner executes the full daily digest run.
type Runner struct {
	snapshotter *Snapshotter
	builder     *Builder
	subscribers SubscriberStore
	mailer      DigestMailer
	strategies  digest.StrategySet
	baseURL     string
	logger      *slog.Logger
}

// NewRunner wires the daily run.
func NewRunner(snapshotter *Snapshotter, b *Builder, subscribers SubscriberStore, m DigestMailer, strategies digest.StrategySet, baseURL string, logger *slog.Logger) *Runner {
	return &Runner{
		snapshotter: snapshotter,
		builder:     b,
		subscribers: subscribers,
		mailer:      m,
		strategies:  strategies,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// Run snapshots the candidate pool once, then builds and delivers every
// configured strategy's digest concurrently. Each (strategy, date) digest
// has a single writer, so the strategies never contend. A failed send is
// logged and counted but never cancels or delays the other sends; the run
// returns an aggregate error when anything failed.
func (r *Runner) Run(ctx context.Context, date time.Time) error {
	items, err := r.snapshotter.Snapshot(ctx, date)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	subs, err := r.subscribers.ListSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	byStrategy := make(map[digest.Strategy][]digest.Subscriber)
	for _, sub := range subs {
		byStrategy[sub.Strategy] = append(byStrategy[sub.Strategy], sub)
	}

	var failuresMu sync.Mutex
	var failures []error
	record := func(err error) {
		failuresMu.Lock()
		defer failuresMu.Unlock()
		failures = append(failures, err)
	}

	var wg errgroup.Group
	for _, strategy := range r.strategies.All() {
		wg.Go(func() error {
			if err := r.runStrategy(ctx, strategy, date, items, byStrategy[strategy]); err != nil {
				record(fmt.Errorf("strategy %s: %w", strategy, err))
			}
			return nil
		})
	}
	_ = wg.Wait()

	if len(failures) > 0 {
		return fmt.Errorf("digest run for %s: %w", date.Format(time.DateOnly), errors.Join(failures...))
	}
	r.logger.Info("Digest run complete", "date", date.Format(time.DateOnly), "subscribers", len(subs))
	return nil
}

// runStrategy builds one strategy's digest and delivers it.
func (r *Runner) runStrategy(ctx context.Context, strategy digest.Strategy, date time.Time, items map[string]digest.Item, subs []digest.Subscriber) error {
	datestamp := date.Format(time.DateOnly)
	prevDate := date.AddDate(0, 0, -1).Format(time.DateOnly)

	selected, err := r.builder.Build(ctx, strategy, datestamp, prevDate, items)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		r.logger.Info("Empty digest, skipping send", "strategy", strategy.String(), "date", datestamp)
		return nil
	}
	if len(subs) == 0 {
		r.logger.Info("No subscribers for strategy", "strategy", strategy.String())
		return nil
	}

	rendered, err := r.mailer.RenderDigest(date, strategy.Description(), selected)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	var failed atomic.Int64
	var sendGroup errgroup.Group
	sendGroup.SetLimit(sendConcurrency)
	for _, sub := range subs {
		sendGroup.Go(func() error {
			unsubscribeURL := fmt.Sprintf("%s/api/unsubscribe?token=%s",
				r.baseURL, url.QueryEscape(sub.UnsubscribeToken.String()))
			if err := r.mailer.SendDigest(ctx, rendered, sub.Email, unsubscribeURL); err != nil {
				failed.Add(1)
				r.logger.Warn("Digest send failed", "strategy", strategy.String(), "email", sub.Email, "error", err)
			}
			return nil
		})
	}
	_ = sendGroup.Wait()

	sent := int64(len(subs)) - failed.Load()
	r.logger.Info("Digest delivered",
		"strategy", strategy.String(),
		"date", datestamp,
		"sent", sent,
		"failed", failed.Load())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d sends failed", n, len(subs))
	}
	return nil
}
