package storage

import (
	"context"
	"sync"

	"hackerdigest/pkg/digest"
)

// MemoryStore is an in-memory Storage for local development and tests.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	snapshots   map[string]map[string]digest.Item
	digests     map[string][]digest.Item
	subscribers map[string]digest.Subscriber
	pending     map[string]digest.PendingSubscription
}

// NewMemoryStore creates an empty in-memory store, optionally seeded.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		snapshots:   make(map[string]map[string]digest.Item),
		digests:     make(map[string][]digest.Item),
		subscribers: make(map[string]digest.Subscriber),
		pending:     make(map[string]digest.PendingSubscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MemoryOption seeds a MemoryStore at construction.
type MemoryOption func(*MemoryStore)

// WithSubscriber seeds a verified subscriber.
func WithSubscriber(sub digest.Subscriber) MemoryOption {
	return func(m *MemoryStore) {
		m.subscribers[sub.Email] = sub
	}
}

// WithPending seeds a pending subscription.
func WithPending(pending digest.PendingSubscription) MemoryOption {
	return func(m *MemoryStore) {
		m.pending[pending.Email] = pending
	}
}

// WithDigest seeds a stored digest.
func WithDigest(strategy digest.Strategy, date string, posts []digest.Item) MemoryOption {
	return func(m *MemoryStore) {
		m.digests[digestKey(strategy, date)] = posts
	}
}

func digestKey(strategy digest.Strategy, date string) string {
	return strategy.String() + "/" + date
}

func (m *MemoryStore) PutSnapshot(_ context.Context, date string, posts map[string]digest.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]digest.Item, len(posts))
	for id, item := range posts {
		copied[id] = item
	}
	m.snapshots[date] = copied
	return nil
}

func (m *MemoryStore) GetDigest(_ context.Context, strategy digest.Strategy, date string) ([]digest.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	posts, ok := m.digests[digestKey(strategy, date)]
	if !ok {
		return nil, nil
	}
	// An empty stored digest is still a record; nil means absent.
	copied := make([]digest.Item, len(posts))
	copy(copied, posts)
	return copied, nil
}

func (m *MemoryStore) PutDigest(_ context.Context, strategy digest.Strategy, date string, posts []digest.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]digest.Item, len(posts))
	copy(copied, posts)
	m.digests[digestKey(strategy, date)] = copied
	return nil
}

func (m *MemoryStore) GetSubscriberByEmail(_ context.Context, email string) (*digest.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscribers[digest.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (m *MemoryStore) GetSubscriberByToken(_ context.Context, token digest.Token) (*digest.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []digest.Subscriber
	for _, sub := range m.subscribers {
		if sub.UnsubscribeToken == token {
			matches = append(matches, sub)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, &DuplicateTokenError{Token: token, Count: len(matches)}
	}
}

func (m *MemoryStore) ListSubscribers(_ context.Context) ([]digest.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]digest.Subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, sub)
	}
	return subs, nil
}

func (m *MemoryStore) UpsertSubscriber(_ context.Context, sub *digest.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[sub.Email] = *sub
	return nil
}

func (m *MemoryStore) DeleteSubscriber(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, digest.NormalizeEmail(email))
	return nil
}

func (m *MemoryStore) GetPendingByEmail(_ context.Context, email string) (*digest.PendingSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, ok := m.pending[digest.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &pending, nil
}

func (m *MemoryStore) UpsertPending(_ context.Context, pending *digest.PendingSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[pending.Email] = *pending
	return nil
}

// HasSubscriber reports whether a subscriber exists for email. Test helper.
func (m *MemoryStore) HasSubscriber(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscribers[digest.NormalizeEmail(email)]
	return ok
}

// SubscriberCount returns the number of verified subscribers. Test helper.
func (m *MemoryStore) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}
