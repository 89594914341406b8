package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// Outbound hosts that receive sentry-trace and baggage headers.
var tracePropagationTargets = []string{
	"api.stripe.com",
	"api.resend.com",
}

func WrapRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return sentryhttpclient.NewSentryRoundTripper(
		base,
		sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
	)
}

// NewHTTPClient returns a traced client. A positive timeout bounds every
// request made through it.
func NewHTTPClient(timeout time.Duration) *http.Client {
	client := &http.Client{
		Transport: WrapRoundTripper(http.DefaultTransport),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}
