package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SkipCooldown != 60*time.Second {
		t.Errorf("SkipCooldown = %v, want 60s", cfg.SkipCooldown)
	}
	if cfg.GameExpiry != 5*time.Minute {
		t.Errorf("GameExpiry = %v, want 5m", cfg.GameExpiry)
	}
	if cfg.RedisAddr != "" || cfg.DatabaseURL != "" || cfg.NATSURL != "" {
		t.Error("optional backends should default to empty/disabled")
	}
}

func TestLoadRespectsEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SKIP_COOLDOWN_MS", "1500")
	t.Setenv("PER_IP_CONN_CAP", "not-a-number")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.SkipCooldown != 1500*time.Millisecond {
		t.Errorf("SkipCooldown = %v, want 1.5s", cfg.SkipCooldown)
	}
	if cfg.PerIPConnCap != 5 {
		t.Errorf("PerIPConnCap = %d, want the default 5 since the env value is unparseable", cfg.PerIPConnCap)
	}
}
