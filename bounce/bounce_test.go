package bounce

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"hackerdigest/pkg/digest"
	"hackerdigest/storage"
)

func seededStore(emails ...string) *storage.MemoryStore {
	opts := make([]storage.MemoryOption, 0, len(emails))
	for _, email := range emails {
		opts = append(opts, storage.WithSubscriber(*digest.NewSubscriber(email, digest.TopNStrategy(10))))
	}
	return storage.NewMemoryStore(opts...)
}

func newTestHandler(store Store) *Handler {
	return NewHandler(store, slog.New(slog.DiscardHandler))
}

func TestHandlePermanentBounceRemovesRecipients(t *testing.T) {
	store := seededStore("a@example.com", "b@example.com", "c@example.com")
	h := newTestHandler(store)

	err := h.Handle(context.Background(), &Notification{
		EventType: "Bounce",
		Bounce: &Bounce{
			BounceType: "Permanent",
			BouncedRecipients: []Recipient{
				{EmailAddress: "a@example.com"},
				{EmailAddress: "b@example.com"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if store.HasSubscriber("a@example.com") || store.HasSubscriber("b@example.com") {
		t.Error("bounced recipients still subscribed")
	}
	if !store.HasSubscriber("c@example.com") {
		t.Error("unaffected subscriber was removed")
	}
}

func TestHandleTransientBounceIsNoOp(t *testing.T) {
	store := seededStore("a@example.com")
	h := newTestHandler(store)

	err := h.Handle(context.Background(), &Notification{
		EventType: "Bounce",
		Bounce: &Bounce{
			BounceType:        "Transient",
			BouncedRecipients: []Recipient{{EmailAddress: "a@example.com"}},
		},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !store.HasSubscriber("a@example.com") {
		t.Error("transient bounce removed a subscriber")
	}
}

func TestHandleComplaintRemovesRecipients(t *testing.T) {
	store := seededStore("a@example.com")
	h := newTestHandler(store)

	err := h.Handle(context.Background(), &Notification{
		EventType: "Complaint",
		Complaint: &Complaint{
			ComplainedRecipients: []Recipient{{EmailAddress: "a@example.com"}},
		},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if store.HasSubscriber("a@example.com") {
		t.Error("complained recipient still subscribed")
	}
}

func TestHandleMissingPayloadIsError(t *testing.T) {
	h := newTestHandler(seededStore())

	if err := h.Handle(context.Background(), &Notification{EventType: "Bounce"}); err == nil {
		t.Error("Handle(bounce without payload) succeeded, want error")
	}
	if err := h.Handle(context.Background(), &Notification{EventType: "Complaint"}); err == nil {
		t.Error("Handle(complaint without payload) succeeded, want error")
	}
}

func TestHandleUnknownEventIsIgnored(t *testing.T) {
	store := seededStore("a@example.com")
	h := newTestHandler(store)

	if err := h.Handle(context.Background(), &Notification{EventType: "Delivery"}); err != nil {
		t.Fatalf("Handle(Delivery) error = %v", err)
	}
	if !store.HasSubscriber("a@example.com") {
		t.Error("unknown event removed a subscriber")
	}
}

// failingStore fails deletion for one address.
type failingStore struct {
	inner    *storage.MemoryStore
	failFor  string
	failures int
}

func (f *failingStore) DeleteSubscriber(ctx context.Context, email string) error {
	if email == f.failFor {
		f.failures++
		return errors.New("storage unavailable")
	}
	return f.inner.DeleteSubscriber(ctx, email)
}

func TestHandleIsolatesRecipientFailures(t *testing.T) {
	inner := seededStore("a@example.com", "b@example.com")
	store := &failingStore{inner: inner, failFor: "a@example.com"}
	h := newTestHandler(store)

	err := h.Handle(context.Background(), &Notification{
		EventType: "Bounce",
		Bounce: &Bounce{
			BounceType: "Permanent",
			BouncedRecipients: []Recipient{
				{EmailAddress: "not-an-email"},
				{EmailAddress: "a@example.com"},
				{EmailAddress: "b@example.com"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if store.failures != 1 {
		t.Errorf("delete attempts for failing address = %d, want 1", store.failures)
	}
	if inner.HasSubscriber("b@example.com") {
		t.Error("later recipient not processed after earlier failure")
	}
}
