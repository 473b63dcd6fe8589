package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
model:
  model: claude-sonnet-4-20250514
  api_key: sk-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8765" {
		t.Fatalf("listen_addr=%q, want default", cfg.ListenAddr)
	}
	if cfg.RunsDir != "runs" {
		t.Fatalf("runs_dir=%q, want default", cfg.RunsDir)
	}
	if got := cfg.CommandTimeout(); got != 300*time.Second {
		t.Fatalf("command timeout=%v, want 5m", got)
	}
}

func TestLoadRejectsMissingModel(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
model:
  api_key: sk-test
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing model name")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
model:
  provider: bard
  model: some-model
  api_key: sk-test
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
listen_addr: 0.0.0.0:9000
runs_dir: /var/lib/toolbridge/runs
command_timeout_seconds: 60
model:
  provider: openai
  model: gpt-4.1
  api_key: sk-test
search:
  provider: brave
  api_key: brave-key
log_format: text
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("listen_addr=%q", cfg.ListenAddr)
	}
	if cfg.Model.Provider != "openai" || cfg.Search.Provider != "brave" {
		t.Fatalf("providers=%q/%q, want openai/brave", cfg.Model.Provider, cfg.Search.Provider)
	}
	if got := cfg.CommandTimeout(); got != time.Minute {
		t.Fatalf("command timeout=%v, want 1m", got)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &Config{
		ListenAddr: "127.0.0.1:8111",
		Model:      ModelConfig{Model: "claude-sonnet-4-20250514", APIKey: "sk-test"},
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if out.ListenAddr != in.ListenAddr || out.Model.Model != in.Model.Model {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config file mode=%o, want 0600", perm)
	}
}
