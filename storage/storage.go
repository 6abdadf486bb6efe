// Package storage persists snapshots, digests, subscribers and pending
// subscriptions. The production backend is a single DynamoDB table; an
// in-memory implementation backs local development and tests.
package storage

import (
	"context"
	"fmt"
	"time"

	"hackerdigest/pkg/digest"
)

// Storage is the persistence surface the rest of the service depends on.
// Single-record reads return (nil, nil) when the record does not exist;
// absence is not an error.
type Storage interface {
	// PutSnapshot stores the candidate pool fetched for date.
	PutSnapshot(ctx context.Context, date string, posts map[string]digest.Item) error

	// GetDigest returns the digest stored for (strategy, date), or nil.
	GetDigest(ctx context.Context, strategy digest.Strategy, date string) ([]digest.Item, error)

	// PutDigest stores the digest for (strategy, date), overwriting any
	// previous value.
	PutDigest(ctx context.Context, strategy digest.Strategy, date string, posts []digest.Item) error

	// GetSubscriberByEmail returns the verified subscriber for the
	// normalized email, or nil.
	GetSubscriberByEmail(ctx context.Context, email string) (*digest.Subscriber, error)

	// GetSubscriberByToken resolves an unsubscribe token, or nil. More
	// than one match is a data integrity failure reported as
	// DuplicateTokenError.
	GetSubscriberByToken(ctx context.Context, token digest.Token) (*digest.Subscriber, error)

	// ListSubscribers returns every verified subscriber, following
	// pagination transparently.
	ListSubscribers(ctx context.Context) ([]digest.Subscriber, error)

	// UpsertSubscriber creates or replaces the subscriber record keyed by
	// its normalized email.
	UpsertSubscriber(ctx context.Context, sub *digest.Subscriber) error

	// DeleteSubscriber removes the subscriber for the normalized email.
	// Deleting a missing subscriber is not an error.
	DeleteSubscriber(ctx context.Context, email string) error

	// GetPendingByEmail returns the pending subscription for the
	// normalized email, or nil.
	GetPendingByEmail(ctx context.Context, email string) (*digest.PendingSubscription, error)

	// UpsertPending creates or replaces the pending subscription keyed by
	// its normalized email.
	UpsertPending(ctx context.Context, pending *digest.PendingSubscription) error
}

// DuplicateTokenError reports that an unsubscribe token resolved to more
// than one subscriber. Tokens are generated unique; two matches mean the
// data is corrupt and no guess at the right record is safe.
type DuplicateTokenError struct {
	Token digest.Token
	Count int
}

func (e *DuplicateTokenError) Error() string {
	return fmt.Sprintf("unsubscribe token resolves to %d subscribers, want at most 1", e.Count)
}

// contentTTL bounds how long snapshots and digests are kept.
const contentTTL = 30 * 24 * time.Hour
