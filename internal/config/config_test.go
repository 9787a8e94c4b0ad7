package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8430 {
		t.Fatalf("default port = %d, want 8430", cfg.Server.Port)
	}
	if cfg.Engine.DuplicateThreshold != 0.8 {
		t.Fatalf("duplicate threshold = %v, want 0.8", cfg.Engine.DuplicateThreshold)
	}
	if cfg.Engine.Lifecycle.GracePeriod != time.Hour {
		t.Fatalf("grace period = %v, want 1h", cfg.Engine.Lifecycle.GracePeriod)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	data := []byte("server:\n  port: 9999\nengine:\n  fusion_k: 30\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Engine.FusionK != 30 {
		t.Fatalf("fusion_k = %d, want 30", cfg.Engine.FusionK)
	}
	// untouched values keep the defaults
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Fatalf("model = %q, want default", cfg.Embedding.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x:y@db:5432/z")
	t.Setenv("SERVER_PORT", "7001")
	t.Setenv("CONSOLIDATION_ENABLED", "false")
	t.Setenv("DUPLICATE_THRESHOLD", "0.9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://x:y@db:5432/z" {
		t.Fatalf("database url not overridden: %q", cfg.Database.URL)
	}
	if cfg.Server.Port != 7001 {
		t.Fatalf("port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.Engine.Consolidation.Enabled {
		t.Fatalf("consolidation should be disabled")
	}
	if cfg.Engine.DuplicateThreshold != 0.9 {
		t.Fatalf("duplicate threshold = %v, want 0.9", cfg.Engine.DuplicateThreshold)
	}
}

func TestEnvOverrideMalformed(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for malformed SERVER_PORT")
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	t.Setenv("DUPLICATE_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for out-of-range duplicate threshold")
	}
}
