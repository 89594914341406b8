package observability

import (
	"context"
	"testing"
	"time"
)

func TestNewHTTPClientAppliesTimeout(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient(3 * time.Second)
	if client.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatal("expected wrapped transport")
	}

	if NewHTTPClient(0).Timeout != 0 {
		t.Fatal("expected no timeout for zero duration")
	}
}

func TestMeterFromContextNeverNil(t *testing.T) {
	t.Parallel()

	if MeterFromContext(context.Background()) == nil {
		t.Fatal("expected meter")
	}
	ctx := WithMeter(context.Background(), nil)
	if MeterFromContext(ctx) == nil {
		t.Fatal("expected meter from context")
	}
	CountReason(ctx, "test.counter", "unit")
}
