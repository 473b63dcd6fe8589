package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Search runs a query against the configured provider. DuckDuckGo needs no
// API key and is the default; Brave requires one.
func Search(ctx context.Context, cfg Config, req SearchRequest) (SearchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = ProviderDuckDuckGo
	}

	req = req.Normalize()
	if req.Query == "" {
		return SearchResult{}, errors.New("missing query")
	}

	switch provider {
	case ProviderBrave:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return SearchResult{}, errors.New("missing brave search api key")
		}
		return braveWebSearch(ctx, cfg.APIKey, req)
	case ProviderDuckDuckGo:
		return duckduckgoSearch(ctx, req)
	default:
		return SearchResult{}, fmt.Errorf("unsupported web search provider %q", provider)
	}
}

// FormatResults renders search results into a readable block for the model.
func FormatResults(res SearchResult) string {
	var b strings.Builder
	for i, item := range res.Results {
		fmt.Fprintf(&b, "\n=== Result %d ===\n", i+1)
		fmt.Fprintf(&b, "URL: %s\n", item.URL)
		fmt.Fprintf(&b, "Title: %s\n", item.Title)
		fmt.Fprintf(&b, "Snippet: %s\n", item.Snippet)
	}
	return b.String()
}
