// Package config is the on-disk configuration for toolbridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file.
//
// NOTE: This file contains secrets (API keys). Always keep it chmod 0600.
type Config struct {
	// ListenAddr is the HTTP bind address. Defaults to "127.0.0.1:8765".
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// RunsDir holds the per-conversation working directories. Defaults to
	// "./runs".
	RunsDir string `yaml:"runs_dir,omitempty"`

	// StateDir holds process-local state such as the tool audit database.
	// Empty disables auditing.
	StateDir string `yaml:"state_dir,omitempty"`

	Model  ModelConfig  `yaml:"model"`
	Search SearchConfig `yaml:"search,omitempty"`

	// SystemPrompt is prepended to every upstream request.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// CommandTimeoutSeconds bounds run_terminal_command. Defaults to 300.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `yaml:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `yaml:"log_level,omitempty"`
}

// ModelConfig selects the upstream model provider.
type ModelConfig struct {
	// Provider is "anthropic" (default) or "openai".
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
}

// SearchConfig selects the web_search backend.
type SearchConfig struct {
	// Provider is "duckduckgo" (default, keyless) or "brave".
	Provider string `yaml:"provider,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(c.Model.Model) == "" {
		return errors.New("missing model.model")
	}
	if strings.TrimSpace(c.Model.APIKey) == "" {
		return errors.New("missing model.api_key")
	}
	switch strings.TrimSpace(strings.ToLower(c.Model.Provider)) {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported model.provider %q", c.Model.Provider)
	}
	switch strings.TrimSpace(strings.ToLower(c.Search.Provider)) {
	case "", "duckduckgo", "brave":
	default:
		return fmt.Errorf("unsupported search.provider %q", c.Search.Provider)
	}
	if c.CommandTimeoutSeconds < 0 {
		return errors.New("command_timeout_seconds must not be negative")
	}
	return nil
}

// Normalize fills defaults after validation.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = "127.0.0.1:8765"
	}
	if strings.TrimSpace(c.RunsDir) == "" {
		c.RunsDir = "runs"
	}
	if c.CommandTimeoutSeconds == 0 {
		c.CommandTimeoutSeconds = 300
	}
}

// CommandTimeout returns the normalized terminal command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// DefaultConfigPath returns the default config path:
//
//	~/.toolbridge/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "toolbridge.config.yaml"
	}
	return filepath.Join(home, ".toolbridge", "config.yaml")
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
