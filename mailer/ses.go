package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/codeGROOVE-dev/retry"
)

// SESClient is the slice of the SES v2 API the provider uses.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider delivers mail through Amazon SES v2. Digest messages carry
// RFC 8058 one-click unsubscribe headers; the configuration set routes
// bounce and complaint events back to the service.
type SESProvider struct {
	client           SESClient
	from             string
	replyTo          string
	configurationSet string
	logger           *slog.Logger
}

// NewSESProvider creates an SES provider. replyTo and configurationSet may
// be empty.
func NewSESProvider(client SESClient, from, replyTo, configurationSet string, logger *slog.Logger) *SESProvider {
	return &SESProvider{
		client:           client,
		from:             from,
		replyTo:          replyTo,
		configurationSet: configurationSet,
		logger:           logger,
	}
}

// Send delivers one message with retries.
func (p *SESProvider) Send(ctx context.Context, msg *Message) error {
	content := &types.Message{
		Subject: &types.Content{Data: aws.String(msg.Subject)},
		Body: &types.Body{
			Html: &types.Content{Data: aws.String(msg.HTML)},
			Text: &types.Content{Data: aws.String(msg.Text)},
		},
	}
	if msg.UnsubscribeURL != "" {
		content.Headers = []types.MessageHeader{
			{Name: aws.String("List-Unsubscribe"), Value: aws.String("<" + msg.UnsubscribeURL + ">")},
			{Name: aws.String("List-Unsubscribe-Post"), Value: aws.String("List-Unsubscribe=One-Click")},
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Simple: content},
	}
	if p.replyTo != "" {
		input.ReplyToAddresses = []string{p.replyTo}
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	err := retry.Do(
		func() error {
			start := time.Now()
			_, err := p.client.SendEmail(ctx, input)
			if err != nil {
				p.logger.Warn("SES send failed",
					"to", msg.To,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err)
				return fmt.Errorf("send email: %w", err)
			}
			p.logger.Info("Email sent",
				"to", msg.To,
				"subject", msg.Subject,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			p.logger.Info("Retrying email send after error", "attempt", n, "to", msg.To, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("send after retries: %w", err)
	}
	return nil
}
