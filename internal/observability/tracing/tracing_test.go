package tracing

import (
	"context"
	"testing"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Endpoint: "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupWithEndpointShutsDownCleanly(t *testing.T) {
	// Non-routable address; nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), Config{Endpoint: "http://192.0.2.1:4318", ServiceName: "shiftbot-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
