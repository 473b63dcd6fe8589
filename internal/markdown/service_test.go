package markdown

import (
	"strings"
	"testing"
)

func TestLooksLikeMarkdown(t *testing.T) {
	t.Parallel()

	positives := []string{
		"# Title\n\nSome text",
		"```go\nfunc main() {}\n```",
		"- item one\n- item two\n\n[link](https://go.dev)",
		"1. first\n2. second\n\n> quoted",
	}
	for _, text := range positives {
		if !LooksLikeMarkdown(text) {
			t.Fatalf("LooksLikeMarkdown(%q)=false, want true", text)
		}
	}

	negatives := []string{
		"",
		"just a plain sentence",
		"a - b - c inline dashes",
	}
	for _, text := range negatives {
		if LooksLikeMarkdown(text) {
			t.Fatalf("LooksLikeMarkdown(%q)=true, want false", text)
		}
	}
}

func TestToHTMLRendersBasicMarkdown(t *testing.T) {
	t.Parallel()

	html, err := ToHTML("# Title\n\nHello **world**")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if !strings.Contains(html, "<h1>Title</h1>") {
		t.Fatalf("html missing heading: %q", html)
	}
	if !strings.Contains(html, "<strong>world</strong>") {
		t.Fatalf("html missing emphasis: %q", html)
	}
}

func TestToHTMLEscapesRawHTML(t *testing.T) {
	t.Parallel()

	html, err := ToHTML("hello <script>alert(1)</script>")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("raw script tag survived rendering: %q", html)
	}
}
