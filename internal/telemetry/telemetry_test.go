package telemetry

import (
	"context"
	"testing"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("CAMCTL_OTEL_ENDPOINT", "")
	t.Setenv("CAMCTL_OTEL_ENABLED", "true")

	shutdown, err := Setup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("CAMCTL_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("CAMCTL_OTEL_ENABLED", "false")

	shutdown, err := Setup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetup_InvalidEnabledFlag(t *testing.T) {
	t.Setenv("CAMCTL_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("CAMCTL_OTEL_ENABLED", "maybe")

	if _, err := Setup(context.Background()); err == nil {
		t.Fatal("expected parse error for CAMCTL_OTEL_ENABLED")
	}
}

func TestSetupWith_CreatesProvider(t *testing.T) {
	// Non-routable address so nothing is exported.
	shutdown, err := SetupWith(context.Background(), Settings{Endpoint: "http://192.0.2.1:4318", Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
