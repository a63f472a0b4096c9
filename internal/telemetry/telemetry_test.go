package telemetry_test

import (
	"context"
	"testing"

	"github.com/tausound/server/internal/config"
	"github.com/tausound/server/internal/telemetry"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), config.TelemetryConfig{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	for _, endpoint := range []string{"http://192.0.2.1:4318", "192.0.2.1:4318"} {
		// Non-routable address so no actual export happens.
		shutdown, err := telemetry.Setup(context.Background(), config.TelemetryConfig{Endpoint: endpoint})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", endpoint, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("%s: shutdown error: %v", endpoint, err)
		}
	}
}
