package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	braveWebSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"
	maxSearchBodyBytes     = 2 << 20 // 2 MiB
)

type braveWebSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func braveWebSearch(ctx context.Context, apiKey string, req SearchRequest) (SearchResult, error) {
	endpoint, err := url.Parse(braveWebSearchEndpoint)
	if err != nil {
		return SearchResult{}, errors.New("invalid brave search endpoint")
	}
	q := endpoint.Query()
	q.Set("q", req.Query)
	q.Set("count", strconv.Itoa(req.Count))
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", strings.TrimSpace(apiKey))

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return SearchResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodyBytes))
	if err != nil {
		return SearchResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return SearchResult{}, fmt.Errorf("brave search failed: status %d", resp.StatusCode)
	}

	var parsed braveWebSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SearchResult{}, err
	}

	out := SearchResult{Provider: ProviderBrave, Query: req.Query}
	for _, item := range parsed.Web.Results {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		out.Results = append(out.Results, ResultItem{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.URL),
			Snippet: strings.TrimSpace(item.Description),
		})
		if len(out.Results) >= req.Count {
			break
		}
	}
	return out, nil
}
