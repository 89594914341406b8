package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	StripeSecretKey           string        `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	StripeWebhookSecret       string        `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`
	PaymentVerificationSecret string        `env:"PAYMENT_VERIFICATION_SECRET,required" validate:"required,min=16"`
	PaymentCurrency           string        `env:"PAYMENT_CURRENCY" envDefault:"inr" validate:"required,len=3,lowercase"`
	GatewayTimeout            time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s" validate:"gt=0s,lte=1m"`

	JWTSecret     string `env:"JWT_SECRET,required" validate:"required,min=16"`
	EncryptionKey string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:admin@localhost"`

	NotifyWorkers   int `env:"NOTIFY_WORKERS" envDefault:"4" validate:"min=1,max=64"`
	NotifyQueueSize int `env:"NOTIFY_QUEUE_SIZE" envDefault:"256" validate:"min=1"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"omitempty,email"`

	MaxPageSize           int   `env:"MAX_PAGE_SIZE" envDefault:"50" validate:"min=1,max=500"`
	ShippingFlatRate      int64 `env:"SHIPPING_FLAT_RATE" envDefault:"5000" validate:"min=0"`
	FreeShippingThreshold int64 `env:"FREE_SHIPPING_THRESHOLD" envDefault:"100000" validate:"min=0"`
	TaxRateBasisPoints    int64 `env:"TAX_RATE_BPS" envDefault:"500" validate:"min=0,max=10000"`

	CatalogSeedPath string `env:"CATALOG_SEED_PATH"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	SentryDSN         string `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	StoreName string     `env:"STORE_NAME" envDefault:"Storefront"`
	BaseURL   string     `env:"BASE_URL" validate:"omitempty,url"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// PushEnabled reports whether VAPID credentials are configured.
func (c *Config) PushEnabled() bool {
	return strings.TrimSpace(c.VAPIDPublicKey) != "" && strings.TrimSpace(c.VAPIDPrivateKey) != ""
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasPublic := strings.TrimSpace(c.VAPIDPublicKey) != ""
	hasPrivate := strings.TrimSpace(c.VAPIDPrivateKey) != ""
	if hasPublic != hasPrivate {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	if c.EmailProvider != "" && (strings.TrimSpace(c.EmailAPIKey) == "" || strings.TrimSpace(c.EmailFrom) == "") {
		return fmt.Errorf("EMAIL_API_KEY and EMAIL_FROM are required when EMAIL_PROVIDER is set")
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("BASE_URL must use https outside local development")
		}
	}

	return nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
