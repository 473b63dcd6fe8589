// Package llm adapts upstream model providers to the chat engine's Completer
// interface.
package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caldero/toolbridge/internal/chat"
	"github.com/caldero/toolbridge/internal/tools"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config selects and authenticates the upstream provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string

	// BaseURL overrides the provider endpoint, e.g. for OpenAI-compatible
	// gateways. Empty uses the provider default.
	BaseURL string
}

// NewCompleter builds the provider client for cfg. The tool definitions are
// fixed for the process lifetime and advertised on every request.
func NewCompleter(cfg Config, defs []tools.Definition, log *slog.Logger) (chat.Completer, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing model api key")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("missing model name")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", ProviderAnthropic:
		return newAnthropicCompleter(cfg, defs, log), nil
	case ProviderOpenAI:
		return newOpenAICompleter(cfg, defs, log), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
