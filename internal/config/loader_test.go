package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Memory.SessionTTL != def.Memory.SessionTTL {
		t.Errorf("expected default sessionTtl %v, got %v", def.Memory.SessionTTL, cfg.Memory.SessionTTL)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
memory:
  sessionTtl: 2m
  contextLimit: 10
summarizer:
  model: claude-haiku-4-5
channels:
  telegram:
    enabled: true
    token: tg-token
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Memory.SessionTTL.Std(); got != 2*time.Minute {
		t.Errorf("expected sessionTtl 2m, got %v", got)
	}
	if cfg.Memory.ContextLimit != 10 {
		t.Errorf("expected contextLimit 10, got %d", cfg.Memory.ContextLimit)
	}
	if cfg.Summarizer.Model != "claude-haiku-4-5" {
		t.Errorf("expected model claude-haiku-4-5, got %q", cfg.Summarizer.Model)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("telegram config not applied: %+v", cfg.Channels.Telegram)
	}
}

func TestLoad_DurationAsSeconds(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "memory:\n  topicTtl: 45\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Memory.TopicTTL.Std(); got != 45*time.Second {
		t.Errorf("expected topicTtl 45s, got %v", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "memory: [not: valid")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid YAML (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Memory.SessionTTL != def.Memory.SessionTTL {
		t.Errorf("expected default sessionTtl %v, got %v", def.Memory.SessionTTL, cfg.Memory.SessionTTL)
	}
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "memory:\n  contextLimit: 3\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Memory.ContextLimit != 3 {
		t.Errorf("expected contextLimit 3, got %d", cfg.Memory.ContextLimit)
	}
	if cfg.Memory.HandoffTTL != def.Memory.HandoffTTL {
		t.Errorf("expected default handoffTtl %v, got %v", def.Memory.HandoffTTL, cfg.Memory.HandoffTTL)
	}
	if cfg.Channels.CLI.Enabled != def.Channels.CLI.Enabled {
		t.Errorf("expected default cli.enabled %v, got %v", def.Channels.CLI.Enabled, cfg.Channels.CLI.Enabled)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := DefaultConfig()
	original.Memory.SessionTTL = Duration(3 * time.Minute)
	original.Channels.Web.Port = 9999

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Memory.SessionTTL != original.Memory.SessionTTL {
		t.Errorf("sessionTtl mismatch: got %v, want %v", loaded.Memory.SessionTTL, original.Memory.SessionTTL)
	}
	if loaded.Channels.Web.Port != 9999 {
		t.Errorf("web port mismatch: got %d, want 9999", loaded.Channels.Web.Port)
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.yaml")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}
