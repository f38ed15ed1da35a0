package otel_test

import (
	"context"
	"testing"

	"github.com/louisbranch/hymnal.space/internal/platform/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("HYMNAL_SPACE_OTEL_ENDPOINT", "")
	t.Setenv("HYMNAL_SPACE_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "worship-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupNoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("HYMNAL_SPACE_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("HYMNAL_SPACE_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "worship-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable documentation address; nothing is exported before shutdown.
	t.Setenv("HYMNAL_SPACE_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("HYMNAL_SPACE_OTEL_ENABLED", "")
	t.Setenv("HYMNAL_SPACE_OTEL_SAMPLE_RATIO", "0.5")

	shutdown, err := otel.Setup(context.Background(), "worship-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupRejectsMalformedRatio(t *testing.T) {
	t.Setenv("HYMNAL_SPACE_OTEL_SAMPLE_RATIO", "lots")

	if _, err := otel.Setup(context.Background(), "worship-test"); err == nil {
		t.Fatal("expected config error")
	}
}

func TestConfigActive(t *testing.T) {
	tests := []struct {
		name string
		cfg  otel.Config
		want bool
	}{
		{name: "empty", cfg: otel.Config{}, want: false},
		{name: "endpoint", cfg: otel.Config{Endpoint: "http://collector:4318"}, want: true},
		{name: "disabled", cfg: otel.Config{Endpoint: "http://collector:4318", Enabled: "FALSE"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Active(); got != tt.want {
				t.Fatalf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}
