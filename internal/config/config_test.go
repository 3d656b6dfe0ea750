package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadNodeDefaultsAndEnvOverride(t *testing.T) {
	os.Setenv("NODE_UID", "5")
	os.Setenv("NODE_RETRY_ATTEMPTS", "9")
	defer os.Unsetenv("NODE_UID")
	defer os.Unsetenv("NODE_RETRY_ATTEMPTS")

	cfg, err := LoadNode("")
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}
	if cfg.UID != 5 {
		t.Errorf("uid = %d, want 5", cfg.UID)
	}
	if cfg.RetryAttempts != 9 {
		t.Errorf("retry attempts = %d, want 9", cfg.RetryAttempts)
	}
	if cfg.HeartbeatPeriod != 5*time.Second {
		t.Errorf("heartbeat period = %v, want 5s default", cfg.HeartbeatPeriod)
	}
}

func TestLoadNodeFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	content := "uid: 3\nlisten: \":9001\"\nretry_delay: 500ms\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadNode(path)
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}
	if cfg.UID != 3 {
		t.Errorf("uid = %d, want 3", cfg.UID)
	}
	if cfg.Listen != ":9001" {
		t.Errorf("listen = %q, want :9001", cfg.Listen)
	}
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("retry delay = %v, want 500ms", cfg.RetryDelay)
	}
}

func TestLoadNodeMissingUID(t *testing.T) {
	if _, err := LoadNode(""); err == nil {
		t.Fatal("expected error when uid is unset")
	}
}

func TestLoadRegistrarDefaults(t *testing.T) {
	cfg, err := LoadRegistrar("")
	if err != nil {
		t.Fatalf("LoadRegistrar: %v", err)
	}
	if cfg.Listen != ":1099" {
		t.Errorf("listen = %q, want :1099", cfg.Listen)
	}
	if cfg.ElectionTimeout != 30*time.Second {
		t.Errorf("election timeout = %v, want 30s", cfg.ElectionTimeout)
	}
}
