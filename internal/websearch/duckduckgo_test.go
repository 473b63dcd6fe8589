package websearch

import "testing"

const duckduckgoFixture = `
<html><body>
<div class="result">
  <a class="result__a" href="/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The Go Programming Language</a>
  <a class="result__snippet" href="/l/?uddg=https%3A%2F%2Fgo.dev%2F">Build simple, secure, scalable systems with Go.</a>
</div>
<div class="result">
  <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  <div class="result__snippet">Discover packages.</div>
</div>
</body></html>`

func TestParseDuckduckgoResults(t *testing.T) {
	t.Parallel()

	items := parseDuckduckgoResults(duckduckgoFixture, 10)
	if len(items) != 2 {
		t.Fatalf("len(items)=%d, want 2", len(items))
	}
	if items[0].URL != "https://go.dev/" {
		t.Fatalf("first URL=%q, want the unwrapped redirect target", items[0].URL)
	}
	if items[0].Title != "The Go Programming Language" {
		t.Fatalf("first title=%q", items[0].Title)
	}
	if items[0].Snippet != "Build simple, secure, scalable systems with Go." {
		t.Fatalf("first snippet=%q", items[0].Snippet)
	}
	if items[1].URL != "https://pkg.go.dev/" {
		t.Fatalf("second URL=%q, want the absolute href kept as-is", items[1].URL)
	}
}

func TestParseDuckduckgoResultsHonorsLimit(t *testing.T) {
	t.Parallel()

	items := parseDuckduckgoResults(duckduckgoFixture, 1)
	if len(items) != 1 {
		t.Fatalf("len(items)=%d, want 1", len(items))
	}
}

func TestResolveDuckduckgoHref(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc": "https://go.dev/doc",
		"https://example.com/page":            "https://example.com/page",
		"/relative/path":                      "",
		"":                                    "",
	}
	for href, want := range cases {
		if got := resolveDuckduckgoHref(href); got != want {
			t.Fatalf("resolveDuckduckgoHref(%q)=%q, want %q", href, got, want)
		}
	}
}
