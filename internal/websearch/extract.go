package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxPageBodyBytes = 4 << 20 // 4 MiB

// skipElements are elements whose content is excluded from extraction.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true, atom.Br: true,
}

// ExtractPages fetches each URL and returns its readable text content with
// hyperlinks preserved in markdown form. maxConcurrent bounds parallel
// fetches; failures are reported per page, never as an overall error.
func ExtractPages(ctx context.Context, urls []string, maxConcurrent int) []Page {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pages := make([]Page, len(urls))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			pages[i] = extractOne(ctx, u)
		}(i, u)
	}
	wg.Wait()
	return pages
}

func extractOne(ctx context.Context, rawURL string) Page {
	page := Page{URL: rawURL}
	if err := validateURL(rawURL); err != nil {
		page.Error = err.Error()
		return page
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		page.Error = err.Error()
		return page
	}
	req.Header.Set("User-Agent", "toolbridge/1.0")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		page.Error = err.Error()
		return page
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		page.Error = fmt.Sprintf("fetch failed: status %d", resp.StatusCode)
		return page
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBodyBytes))
	if err != nil {
		page.Error = err.Error()
		return page
	}

	title, content := extractHTML(string(body))
	page.Title = title
	page.Content = content
	return page
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("invalid URL: " + raw)
	}
	if u.Host == "" {
		return errors.New("invalid URL: " + raw)
	}
	return nil
}

// extractHTML parses HTML and returns (title, readable text). Anchors become
// markdown links so downstream consumers keep the references.
func extractHTML(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", ""
	}
	title := findTitle(doc)

	var b strings.Builder
	extractText(doc, &b)
	return title, cleanWhitespace(b.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return strings.TrimSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func extractText(n *html.Node, w *strings.Builder) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.A {
			text := strings.TrimSpace(textContent(n))
			href := strings.TrimSpace(attr(n, "href"))
			if text != "" && strings.HasPrefix(href, "http") {
				fmt.Fprintf(w, " [%s](%s) ", text, href)
				return
			}
		}
		if blockElements[n.DataAtom] && w.Len() > 0 {
			w.WriteString("\n")
		}
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(text)
			w.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, w)
	}
}

func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
