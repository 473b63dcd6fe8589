// Package websearch provides web search and page content extraction for the
// web tools.
package websearch

import "strings"

const (
	ProviderBrave      = "brave"
	ProviderDuckDuckGo = "duckduckgo"
)

// Config selects the search provider. APIKey is required for Brave only.
type Config struct {
	Provider string
	APIKey   string
}

type SearchRequest struct {
	Query string
	Count int
}

func (r SearchRequest) Normalize() SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	if out.Count <= 0 {
		out.Count = 10
	}
	if out.Count > 20 {
		out.Count = 20
	}
	return out
}

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type SearchResult struct {
	Provider string       `json:"provider"`
	Query    string       `json:"query"`
	Results  []ResultItem `json:"results"`
}

// Page is the readable content extracted from one URL.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}
