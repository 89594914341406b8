// Package email sends transactional order emails.
package email

import (
	"context"
	"fmt"
	"strings"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

// NewProvider returns nil without error when no provider is configured, which
// disables email delivery.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "":
		return nil, nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be 'resend' or empty")
	}
}
