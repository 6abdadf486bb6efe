package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"hackerdigest/pkg/digest"
)

func TestMemoryStoreSubscriberLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sub := digest.NewSubscriber("User@Example.com", digest.TopNStrategy(10))
	if err := store.UpsertSubscriber(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscriber() error = %v", err)
	}

	got, err := store.GetSubscriberByEmail(ctx, "USER@example.com")
	if err != nil {
		t.Fatalf("GetSubscriberByEmail() error = %v", err)
	}
	if got == nil || got.Email != "user@example.com" {
		t.Fatalf("GetSubscriberByEmail() = %+v, want normalized record", got)
	}

	byToken, err := store.GetSubscriberByToken(ctx, sub.UnsubscribeToken)
	if err != nil {
		t.Fatalf("GetSubscriberByToken() error = %v", err)
	}
	if byToken == nil || byToken.Email != sub.Email {
		t.Fatalf("GetSubscriberByToken() = %+v, want %q", byToken, sub.Email)
	}

	if err := store.DeleteSubscriber(ctx, sub.Email); err != nil {
		t.Fatalf("DeleteSubscriber() error = %v", err)
	}
	got, err = store.GetSubscriberByEmail(ctx, sub.Email)
	if err != nil {
		t.Fatalf("GetSubscriberByEmail() after delete error = %v", err)
	}
	if got != nil {
		t.Errorf("subscriber still present after delete: %+v", got)
	}

	// Deleting again is not an error.
	if err := store.DeleteSubscriber(ctx, sub.Email); err != nil {
		t.Errorf("DeleteSubscriber() on missing record error = %v", err)
	}
}

func TestMemoryStoreMissingRecordsAreNil(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if sub, err := store.GetSubscriberByEmail(ctx, "nobody@example.com"); err != nil || sub != nil {
		t.Errorf("GetSubscriberByEmail() = %v, %v, want nil, nil", sub, err)
	}
	if sub, err := store.GetSubscriberByToken(ctx, digest.Token("missing")); err != nil || sub != nil {
		t.Errorf("GetSubscriberByToken() = %v, %v, want nil, nil", sub, err)
	}
	if pending, err := store.GetPendingByEmail(ctx, "nobody@example.com"); err != nil || pending != nil {
		t.Errorf("GetPendingByEmail() = %v, %v, want nil, nil", pending, err)
	}
	if posts, err := store.GetDigest(ctx, digest.TopNStrategy(10), "2026-08-29"); err != nil || posts != nil {
		t.Errorf("GetDigest() = %v, %v, want nil, nil", posts, err)
	}
}

func TestMemoryStoreDuplicateToken(t *testing.T) {
	ctx := context.Background()
	token := digest.Token("shared-token")
	store := NewMemoryStore(
		WithSubscriber(digest.Subscriber{
			Email: "a@example.com", Strategy: digest.TopNStrategy(10),
			SubscribedAt: time.Now(), UnsubscribeToken: token,
		}),
		WithSubscriber(digest.Subscriber{
			Email: "b@example.com", Strategy: digest.TopNStrategy(10),
			SubscribedAt: time.Now(), UnsubscribeToken: token,
		}),
	)

	_, err := store.GetSubscriberByToken(ctx, token)
	var dup *DuplicateTokenError
	if !errors.As(err, &dup) {
		t.Fatalf("GetSubscriberByToken() error = %v, want DuplicateTokenError", err)
	}
	if dup.Count != 2 {
		t.Errorf("DuplicateTokenError.Count = %d, want 2", dup.Count)
	}
}

func TestMemoryStoreDigestIsolatedByStrategyAndDate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	posts := []digest.Item{{ID: "1", Title: "one", Score: 100}}
	if err := store.PutDigest(ctx, digest.TopNStrategy(10), "2026-08-28", posts); err != nil {
		t.Fatalf("PutDigest() error = %v", err)
	}

	got, err := store.GetDigest(ctx, digest.TopNStrategy(10), "2026-08-28")
	if err != nil {
		t.Fatalf("GetDigest() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("GetDigest() = %+v, want stored posts", got)
	}

	other, err := store.GetDigest(ctx, digest.TopNStrategy(20), "2026-08-28")
	if err != nil {
		t.Fatalf("GetDigest() other strategy error = %v", err)
	}
	if other != nil {
		t.Errorf("GetDigest() other strategy = %+v, want nil", other)
	}
}
