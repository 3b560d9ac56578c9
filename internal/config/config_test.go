package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("Load without config file = %+v, want zero Config", cfg)
	}
	if cfg.Spacing() != DefaultCheckpointSpacing {
		t.Fatalf("Spacing = %d, want default %d", cfg.Spacing(), DefaultCheckpointSpacing)
	}
}

func TestLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".tarmount")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "checkpoint_spacing: 1048576\nfuse_options: allow_other\nlog_level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CheckpointSpacing != 1048576 || cfg.FuseOptions != "allow_other" || cfg.LogLevel != "debug" {
		t.Fatalf("Load = %+v", cfg)
	}
	if cfg.Spacing() != 1048576 {
		t.Fatalf("Spacing = %d, want 1048576", cfg.Spacing())
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".tarmount")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestIndexCandidates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	candidates, err := IndexCandidates("/data/backup.tar")
	if err != nil {
		t.Fatalf("IndexCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0] != "/data/backup.tar.index.sqlite" {
		t.Fatalf("candidates[0] = %q", candidates[0])
	}
	want := filepath.Join(home, ".tarmount", "_data_backup.tar.index.sqlite")
	if candidates[1] != want {
		t.Fatalf("candidates[1] = %q, want %q", candidates[1], want)
	}
	if strings.Contains(filepath.Base(candidates[1]), string(filepath.Separator)) {
		t.Fatalf("flattened name still contains separators: %q", candidates[1])
	}
}
