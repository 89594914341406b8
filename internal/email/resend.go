package email

import (
	"context"
	"fmt"
	"time"

	resend "github.com/resend/resend-go/v3"

	"github.com/storefrontapp/storefront/internal/observability"
)

const resendTimeout = 10 * time.Second

// ResendProvider implements the Provider interface for Resend.
type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{
		from:   from,
		client: resend.NewCustomClient(observability.NewHTTPClient(resendTimeout), apiKey),
	}
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if email.To == "" {
		return fmt.Errorf("email recipient is required")
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if params.Html == "" && params.Text == "" {
		return fmt.Errorf("email body is empty")
	}

	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	return nil
}
