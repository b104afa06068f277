package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n  dsn: " + filepath.Join(dir, "db.sqlite") + "\nlinking:\n  workers: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LL_LINKING_TOLERANCE_DAYS", "5")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Linking.Workers != 2 {
		t.Fatalf("Linking.Workers = %d, want 2", cfg.Linking.Workers)
	}
	if cfg.Linking.ToleranceDays != 5 {
		t.Fatalf("Linking.ToleranceDays = %d, want 5", cfg.Linking.ToleranceDays)
	}
	if cfg.Linking.PendingCutoffDays != 180 || cfg.Linking.Timezone != "America/Los_Angeles" {
		t.Fatalf("Linking defaults = %+v", cfg.Linking)
	}
	if cfg.Messaging.Enabled() || cfg.Messaging.Subject != "licensing.records.inserted" {
		t.Fatalf("Messaging = %+v", cfg.Messaging)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown timezone", content: "linking:\n  timezone: Mars/Olympus\n"},
		{name: "zero workers", content: "linking:\n  workers: 0\n"},
		{name: "negative tolerance", content: "linking:\n  tolerance_days: -1\n"},
		{name: "bus without queue", content: "messaging:\n  nats_url: nats://localhost:4222\n  queue: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(context.Background(), path); err == nil {
				t.Fatalf("Load() error = nil")
			}
		})
	}
}
