package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const duckduckgoEndpoint = "https://html.duckduckgo.com/html/"

// duckduckgoSearch queries the DuckDuckGo HTML endpoint, which needs no API
// key, and scrapes the result list.
func duckduckgoSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	endpoint, err := url.Parse(duckduckgoEndpoint)
	if err != nil {
		return SearchResult{}, err
	}
	q := endpoint.Query()
	q.Set("q", req.Query)
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchResult{}, err
	}
	httpReq.Header.Set("User-Agent", "toolbridge/1.0")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return SearchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResult{}, fmt.Errorf("duckduckgo search failed: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodyBytes))
	if err != nil {
		return SearchResult{}, err
	}

	items := parseDuckduckgoResults(string(body), req.Count)
	return SearchResult{Provider: ProviderDuckDuckGo, Query: req.Query, Results: items}, nil
}

func parseDuckduckgoResults(raw string, limit int) []ResultItem {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil
	}
	var items []ResultItem
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(items) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.A && hasClass(n, "result__a") {
			href := attr(n, "href")
			title := strings.TrimSpace(nodeText(n))
			if u := resolveDuckduckgoHref(href); u != "" && title != "" {
				items = append(items, ResultItem{Title: title, URL: u})
			}
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			if len(items) > 0 && items[len(items)-1].Snippet == "" {
				items[len(items)-1].Snippet = strings.TrimSpace(nodeText(n))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return items
}

// resolveDuckduckgoHref unwraps the redirect links the HTML endpoint emits
// ("/l/?uddg=<encoded target>").
func resolveDuckduckgoHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	if u.IsAbs() {
		return href
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
