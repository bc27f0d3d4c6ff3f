package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestWriteExampleRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := cfg.WriteExample(path); err != nil {
		t.Fatalf("WriteExample: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}

	var got Config
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("parsing written config: %v", err)
	}

	if got.App.Name != cfg.App.Name {
		t.Fatalf("app.name mismatch: got %q, want %q", got.App.Name, cfg.App.Name)
	}
	if got.Engine.SocketCeiling != cfg.Engine.SocketCeiling {
		t.Fatalf("engine.socket_ceiling mismatch: got %d, want %d", got.Engine.SocketCeiling, cfg.Engine.SocketCeiling)
	}
	if got.Telemetry.KeyPrefix != cfg.Telemetry.KeyPrefix {
		t.Fatalf("telemetry.key_prefix mismatch: got %q, want %q", got.Telemetry.KeyPrefix, cfg.Telemetry.KeyPrefix)
	}
}

func TestWriteExampleInvalidDirectory(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.WriteExample("/nonexistent-dir/config.yaml"); err == nil {
		t.Fatalf("expected error writing to a nonexistent directory")
	}
}
