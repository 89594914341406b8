package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/observability"
)

const (
	pushTimeout = 10 * time.Second
	pushTTL     = 60 * 60 * 24
)

// ErrSubscriptionGone is returned when the push service reports the endpoint
// as expired. The subscription has already been removed.
var ErrSubscriptionGone = errors.New("push subscription gone")

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

type endpointForgetter interface {
	Forget(ctx context.Context, endpoint string) error
}

// PushSender delivers web push messages signed with the VAPID key pair.
type PushSender struct {
	vapid   VAPIDConfig
	client  webpush.HTTPClient
	forget  endpointForgetter
	urgency webpush.Urgency
}

func NewPushSender(vapid VAPIDConfig, forget endpointForgetter) *PushSender {
	vapid.Subject = strings.TrimPrefix(strings.TrimSpace(vapid.Subject), "mailto:")
	return &PushSender{
		vapid:   vapid,
		client:  observability.NewHTTPClient(pushTimeout),
		forget:  forget,
		urgency: webpush.UrgencyHigh,
	}
}

func (p *PushSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.vapid.Subject,
		VAPIDPublicKey:  p.vapid.PublicKey,
		VAPIDPrivateKey: p.vapid.PrivateKey,
		TTL:             pushTTL,
		Urgency:         p.urgency,
	})
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		if p.forget != nil {
			if err := p.forget.Forget(ctx, sub.Endpoint); err != nil {
				return fmt.Errorf("%w: failed to remove subscription: %v", ErrSubscriptionGone, err)
			}
		}
		return ErrSubscriptionGone
	case resp.StatusCode >= 300:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
