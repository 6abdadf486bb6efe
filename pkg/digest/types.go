// Package digest defines the domain types shared by every part of the
// service: candidate items, selection strategies, subscribers and pending
// subscriptions.
package digest

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PendingTTL is how long a pending subscription stays verifiable.
const PendingTTL = 24 * time.Hour

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Item is a single candidate story as returned by the content source.
// Immutable once fetched. JSON field names match the Algolia response.
type Item struct {
	ID        string `json:"objectID"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Score     int    `json:"points"`
	CreatedAt string `json:"created_at"`
}

// Token is an opaque, non-empty credential (verification or unsubscribe).
type Token string

// NewToken generates a fresh random token.
func NewToken() Token {
	return Token(uuid.NewString())
}

// ParseToken validates that s can be used as a token.
func ParseToken(s string) (Token, error) {
	if s == "" {
		return "", errors.New("token cannot be empty")
	}
	return Token(s), nil
}

func (t Token) String() string {
	return string(t)
}

// Subscriber is a verified subscriber record. Exactly one exists per
// normalized email, and UnsubscribeToken is unique across all subscribers.
type Subscriber struct {
	Email            string    `json:"email"`
	Strategy         Strategy  `json:"strategy"`
	SubscribedAt     time.Time `json:"subscribed_at"`
	UnsubscribeToken Token     `json:"unsubscribe_token"`
}

// NewSubscriber creates a verified subscriber with a generated unsubscribe
// token. The email is normalized.
func NewSubscriber(email string, strategy Strategy) *Subscriber {
	return &Subscriber{
		Email:            NormalizeEmail(email),
		Strategy:         strategy,
		SubscribedAt:     time.Now().UTC(),
		UnsubscribeToken: NewToken(),
	}
}

// PendingSubscription is an unverified subscribe request awaiting email
// confirmation. At most one exists per email; a new request overwrites it.
type PendingSubscription struct {
	Email     string    `json:"email"`
	Token     Token     `json:"token"`
	Strategy  Strategy  `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPendingSubscription creates a pending subscription with a fresh
// verification token and a 24-hour expiry.
func NewPendingSubscription(email string, strategy Strategy) *PendingSubscription {
	now := time.Now().UTC()
	return &PendingSubscription{
		Email:     NormalizeEmail(email),
		Token:     NewToken(),
		Strategy:  strategy,
		CreatedAt: now,
		ExpiresAt: now.Add(PendingTTL),
	}
}

// Expired reports whether the pending subscription can no longer be verified.
func (p *PendingSubscription) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// NormalizeEmail lowercases and trims an email address. All storage keys and
// comparisons use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is an address we accept.
func ValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	// Use mail.ParseAddress for robust validation
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}
