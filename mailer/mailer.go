// Package mailer renders and sends the service's emails through a pluggable
// provider: SES in production, a logging mock in local development.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hackerdigest/pkg/digest"
)

// Message is one outgoing email. HTML and Text are alternative bodies.
// UnsubscribeURL, when set, is exposed through List-Unsubscribe headers.
type Message struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	UnsubscribeURL string
}

// Provider delivers messages.
type Provider interface {
	Send(ctx context.Context, msg *Message) error
}

// Sender renders and sends lifecycle and digest emails.
type Sender struct {
	provider Provider
	logger   *slog.Logger
}

// NewSender creates an email sender with the given provider.
func NewSender(provider Provider, logger *slog.Logger) *Sender {
	return &Sender{provider: provider, logger: logger}
}

// SendVerification sends the double-opt-in confirmation email.
func (s *Sender) SendVerification(ctx context.Context, email, verifyURL, strategyDesc string) error {
	data := verificationData{VerifyURL: verifyURL, StrategyDesc: strategyDesc}
	html, text, err := renderPair(verificationHTML, verificationText, data)
	if err != nil {
		return fmt.Errorf("render verification email: %w", err)
	}

	s.logger.Info("Sending verification email", "to", email)
	return s.provider.Send(ctx, &Message{
		To:      email,
		Subject: "Confirm your Hacker News Digest subscription",
		HTML:    html,
		Text:    text,
	})
}

// SendPreferenceUpdate confirms a strategy change to an existing subscriber.
func (s *Sender) SendPreferenceUpdate(ctx context.Context, email, oldDesc, newDesc string) error {
	data := preferenceData{OldDesc: oldDesc, NewDesc: newDesc}
	html, text, err := renderPair(preferenceHTML, preferenceText, data)
	if err != nil {
		return fmt.Errorf("render preference email: %w", err)
	}

	s.logger.Info("Sending preference update email", "to", email)
	return s.provider.Send(ctx, &Message{
		To:      email,
		Subject: "Your Hacker News Digest preferences were updated",
		HTML:    html,
		Text:    text,
	})
}

// Digest is a rendered digest body, shared by every recipient of one
// strategy's run.
type Digest struct {
	Subject string
	HTML    string
	Text    string
}

// RenderDigest renders the digest body for a day's selection. The body is
// rendered once per strategy and reused across recipients.
func (s *Sender) RenderDigest(date time.Time, strategyDesc string, posts []digest.Item) (*Digest, error) {
	data := digestData{
		Date:         date.Format("Jan 2, 2006"),
		StrategyDesc: strategyDesc,
		Posts:        posts,
	}
	html, text, err := renderPair(digestHTML, digestText, data)
	if err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}
	return &Digest{
		Subject: "Hacker News Digest for " + data.Date,
		HTML:    html,
		Text:    text,
	}, nil
}

// SendDigest sends a rendered digest to one subscriber with their
// unsubscribe link.
func (s *Sender) SendDigest(ctx context.Context, d *Digest, email, unsubscribeURL string) error {
	html := d.HTML + fmt.Sprintf(
		"<p style=\"color:#828282;font-size:12px\"><a href=%q>Unsubscribe</a></p>", unsubscribeURL)
	text := d.Text + fmt.Sprintf("\nUnsubscribe: %s\n", unsubscribeURL)

	return s.provider.Send(ctx, &Message{
		To:             email,
		Subject:        d.Subject,
		HTML:           html,
		Text:           text,
		UnsubscribeURL: unsubscribeURL,
	})
}
