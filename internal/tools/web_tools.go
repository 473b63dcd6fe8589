package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caldero/toolbridge/internal/websearch"
)

func webSearchDefinition() Definition {
	return Definition{
		Name:        "web_search",
		Description: "Search the web for current information. Returns a list of results with URL, title and snippet for each.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Number of results to return (default 10, max 20)",
				},
			},
			"required": []string{"query"},
		},
	}
}

func extractContentDefinition() Definition {
	return Definition{
		Name:        "extract_web_content",
		Description: "Fetch one or more web pages and extract their readable text content. Hyperlinks are preserved in markdown form.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"urls": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "The URLs to extract content from",
				},
				"max_concurrent": map[string]any{
					"type":        "integer",
					"description": "Maximum number of pages fetched in parallel (default 3)",
				},
			},
			"required": []string{"urls"},
		},
	}
}

func (r *Registry) handleWebSearch(ctx context.Context, call Call) (map[string]any, error) {
	query := strings.TrimSpace(stringInput(call.Input, "query"))
	if query == "" {
		return nil, errors.New("missing query")
	}
	req := websearch.SearchRequest{Query: query, Count: intInput(call.Input, "count")}

	res, err := websearch.Search(ctx, r.search, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":  "success",
		"query":   res.Query,
		"results": websearch.FormatResults(res),
		"count":   len(res.Results),
	}, nil
}

func (r *Registry) handleExtractContent(ctx context.Context, call Call) (map[string]any, error) {
	urls, err := stringSliceInput(call.Input, "urls")
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, errors.New("missing urls")
	}

	pages := websearch.ExtractPages(ctx, urls, intInput(call.Input, "max_concurrent"))

	out := make([]map[string]any, 0, len(pages))
	failed := 0
	for _, p := range pages {
		entry := map[string]any{"url": p.URL}
		if p.Error != "" {
			entry["status"] = "error"
			entry["message"] = p.Error
			failed++
		} else {
			entry["status"] = "success"
			entry["title"] = p.Title
			entry["content"] = p.Content
		}
		out = append(out, entry)
	}

	status := "success"
	if failed == len(pages) {
		status = "error"
	}
	return map[string]any{
		"status":  status,
		"pages":   out,
		"message": fmt.Sprintf("extracted %d of %d pages", len(pages)-failed, len(pages)),
	}, nil
}

func intInput(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringSliceInput(input map[string]any, key string) ([]string, error) {
	raw, ok := input[key]
	if !ok {
		return nil, errors.New("missing " + key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New(key + " must be an array of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New(key + " must be an array of strings")
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
