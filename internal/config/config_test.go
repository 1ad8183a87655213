package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	lim := Default()
	if lim.MaxModelAttempts != 2 {
		t.Fatalf("MaxModelAttempts=%d", lim.MaxModelAttempts)
	}
	if lim.FileReadRetries != 3 || lim.GlobalFailureBudget != 6 {
		t.Fatalf("retries=%d budget=%d", lim.FileReadRetries, lim.GlobalFailureBudget)
	}
	if lim.MaxFilesPerRun != 10 || lim.ChunkLineThreshold != 200 {
		t.Fatalf("files=%d threshold=%d", lim.MaxFilesPerRun, lim.ChunkLineThreshold)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	lim, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lim != Default() {
		t.Fatalf("lim=%+v", lim)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	p := filepath.Join(t.TempDir(), "repopilot.yaml")
	if err := os.WriteFile(p, []byte("max_model_attempts: 4\nmodel: gemini-2.5-pro\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lim, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lim.MaxModelAttempts != 4 || lim.Model != "gemini-2.5-pro" {
		t.Fatalf("lim=%+v", lim)
	}
	if lim.FileReadRetries != 3 {
		t.Fatalf("unset field should keep default, got %d", lim.FileReadRetries)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("REPOPILOT_MAX_ATTEMPTS", "5")
	lim, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lim.MaxModelAttempts != 5 {
		t.Fatalf("MaxModelAttempts=%d want 5", lim.MaxModelAttempts)
	}
}

func TestLoadBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte(":\t not yaml ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("want parse error")
	}
}
