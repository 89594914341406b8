// Package cache deduplicates gateway callbacks across retries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Provider stores short-lived markers. Claim is atomic: exactly one caller
// observes true for a key until it expires or is released.
type Provider interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}
