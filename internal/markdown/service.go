// Package markdown renders markdown text to HTML for file previews.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// markdownSignals are patterns that indicate a plain text blob is actually
// markdown: headings, list items, fenced code, links, emphasis.
var markdownSignals = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^#{1,6}\s+\S`),
	regexp.MustCompile(`(?m)^\s*[-*+]\s+\S`),
	regexp.MustCompile(`(?m)^\s*\d+\.\s+\S`),
	regexp.MustCompile("(?m)^```"),
	regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`),
	regexp.MustCompile(`(?m)^\s*>\s+\S`),
}

// LooksLikeMarkdown reports whether the text contains enough markdown
// structure to be worth rendering. Short fragments with a single weak signal
// stay plain text.
func LooksLikeMarkdown(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	hits := 0
	for _, re := range markdownSignals {
		if re.MatchString(text) {
			hits++
		}
	}
	if hits >= 2 {
		return true
	}
	// A heading or fenced block alone is a strong enough signal.
	return hits == 1 && (markdownSignals[0].MatchString(text) || markdownSignals[3].MatchString(text))
}

// ToHTML converts markdown to HTML. Raw HTML in the source is escaped by the
// renderer, so the output is safe to serve inline.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
