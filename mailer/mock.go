package mailer

import (
	"context"
	"log/slog"
)

// MockProvider logs emails instead of sending them. Used in local
// development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a logging provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// Send logs the message.
func (m *MockProvider) Send(_ context.Context, msg *Message) error {
	m.logger.Info("MOCK EMAIL",
		"to", msg.To,
		"subject", msg.Subject,
		"html_length", len(msg.HTML),
		"text_length", len(msg.Text),
		"unsubscribe_url", msg.UnsubscribeURL)
	return nil
}
