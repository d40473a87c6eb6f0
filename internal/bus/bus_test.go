package bus

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("nats://localhost:4222")
	if cfg.URL != "nats://localhost:4222" {
		t.Errorf("URL = %q, want nats://localhost:4222", cfg.URL)
	}
	if cfg.Name == "" {
		t.Error("expected a non-empty client name")
	}
	if cfg.MaxReconnects != -1 {
		t.Errorf("MaxReconnects = %d, want -1 (infinite)", cfg.MaxReconnects)
	}
	if cfg.ReconnectWait <= 0 {
		t.Error("expected a positive reconnect wait")
	}
}

// TestNewNATSBusPublishesWhenAvailable requires a local NATS server
// (localhost:4222) and is skipped otherwise — there is no pure-function way
// to exercise a publish-only client without a broker to publish to.
func TestNewNATSBusPublishesWhenAvailable(t *testing.T) {
	cfg := DefaultConfig("nats://localhost:4222")
	cfg.ReconnectWait = 50 * time.Millisecond
	cfg.MaxReconnects = 0

	b, err := NewNATSBus(cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	defer b.Close()

	b.PublishMatchCreated("room1", "alice", "bob")
	b.PublishPeerDisconnected("alice", "bob")
}
