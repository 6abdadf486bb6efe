// Package subscribe implements the subscription lifecycle: double-opt-in
// requests, email verification, preference updates and token-based removal.
package subscribe

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"hackerdigest/pkg/digest"
)

// Store is the slice of storage the lifecycle needs.
type Store interface {
	GetSubscriberByEmail(ctx context.Context, email string) (*digest.Subscriber, error)
	GetSubscriberByToken(ctx context.Context, token digest.Token) (*digest.Subscriber, error)
	UpsertSubscriber(ctx context.Context, sub *digest.Subscriber) error
	DeleteSubscriber(ctx context.Context, email string) error
	GetPendingByEmail(ctx context.Context, email string) (*digest.PendingSubscription, error)
	UpsertPending(ctx context.Context, pending *digest.PendingSubscription) error
}

// Mailer sends the lifecycle emails.
type Mailer interface {
	SendVerification(ctx context.Context, email, verifyURL, strategyDesc string) error
	SendPreferenceUpdate(ctx context.Context, email, oldDesc, newDesc string) error
}

// Service runs the subscription lifecycle.
type Service struct {
	store   Store
	mailer  Mailer
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a lifecycle service. baseURL is the public origin used
// to build verification links.
func NewService(store Store, mailer Mailer, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		mailer:  mailer,
		baseURL: baseURL,
		logger:  logger,
		now:     time.Now,
	}
}

// Request handles a subscribe request for email with the wanted strategy.
// An already-verified subscriber gets a strategy update in place; anyone
// else gets a fresh pending record and a verification email. Callers must
// not reveal which path was taken.
func (s *Service) Request(ctx context.Context, email string, strategy digest.Strategy) error {
	email = digest.NormalizeEmail(email)

	existing, err := s.store.GetSubscriberByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up subscriber: %w", err)
	}
	if existing != nil {
		oldStrategy, err := s.UpdateStrategy(ctx, existing, strategy)
		if err != nil {
			return err
		}
		if err := s.mailer.SendPreferenceUpdate(ctx, email, oldStrategy.Description(), strategy.Description()); err != nil {
			return fmt.Errorf("send preference update: %w", err)
		}
		return nil
	}

	pending := digest.NewPendingSubscription(email, strategy)
	if err := s.store.UpsertPending(ctx, pending); err != nil {
		return fmt.Errorf("save pending subscription: %w", err)
	}

	verifyURL := fmt.Sprintf("%s/api/verify?email=%s&token=%s",
		s.baseURL, url.QueryEscape(email), url.QueryEscape(pending.Token.String()))
	if err := s.mailer.SendVerification(ctx, email, verifyURL, strategy.Description()); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}

	s.logger.Info("Pending subscription created", "email", email, "strategy", strategy.String())
	return nil
}

// UpdateStrategy changes an existing subscriber's strategy in place,
// preserving the subscription date and unsubscribe token. It returns the
// previous strategy.
func (s *Service) UpdateStrategy(ctx context.Context, sub *digest.Subscriber, strategy digest.Strategy) (digest.Strategy, error) {
	old := sub.Strategy
	updated := *sub
	updated.Strategy = strategy
	if err := s.store.UpsertSubscriber(ctx, &updated); err != nil {
		return digest.Strategy{}, fmt.Errorf("update strategy: %w", err)
	}
	s.logger.Info("Subscriber strategy updated", "email", sub.Email,
		"old_strategy", old.String(), "new_strategy", strategy.String())
	return old, nil
}

// Verify confirms a pending subscription. It returns the verified
// subscriber, or nil when the (email, token) pair does not resolve: unknown
// email, wrong token and expired pending all look identical to the caller.
// Verifying an already-verified subscription returns the existing record,
// so repeated clicks on the same link keep working.
func (s *Service) Verify(ctx context.Context, email string, token digest.Token) (*digest.Subscriber, error) {
	email = digest.NormalizeEmail(email)

	pending, err := s.store.GetPendingByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up pending subscription: %w", err)
	}
	if pending == nil {
		return nil, nil
	}

	// Token comparison comes before every other check so attempts with a
	// bad token learn nothing about the record's state.
	if subtle.ConstantTimeCompare([]byte(pending.Token), []byte(token)) != 1 {
		s.logger.Warn("Verification token mismatch", "email", email)
		return nil, nil
	}

	if pending.Expired(s.now()) {
		s.logger.Info("Pending subscription expired", "email", email)
		return nil, nil
	}

	// A live subscriber means this link was already used; keep the
	// existing record so the unsubscribe token stays stable.
	existing, err := s.store.GetSubscriberByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up subscriber: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	sub := digest.NewSubscriber(email, pending.Strategy)
	if err := s.store.UpsertSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscriber: %w", err)
	}

	s.logger.Info("Subscription verified", "email", email, "strategy", sub.Strategy.String())
	return sub, nil
}

// ByToken resolves an unsubscribe token to its subscriber, or nil.
func (s *Service) ByToken(ctx context.Context, token digest.Token) (*digest.Subscriber, error) {
	sub, err := s.store.GetSubscriberByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("look up token: %w", err)
	}
	return sub, nil
}

// RemoveByToken unsubscribes whoever holds token. It reports whether a
// subscriber was removed.
func (s *Service) RemoveByToken(ctx context.Context, token digest.Token) (bool, error) {
	sub, err := s.store.GetSubscriberByToken(ctx, token)
	if err != nil {
		return false, fmt.Errorf("look up token: %w", err)
	}
	if sub == nil {
		return false, nil
	}
	if err := s.store.DeleteSubscriber(ctx, sub.Email); err != nil {
		return false, fmt.Errorf("delete subscriber: %w", err)
	}
	s.logger.Info("Subscriber unsubscribed", "email", sub.Email)
	return true, nil
}
