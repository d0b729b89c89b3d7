package render

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func snapFor(html string) *Snapshot {
	return &Snapshot{URL: "https://example.com/p", FinalURL: "https://example.com/p", StatusCode: 200, HTML: html}
}

func TestExtractBasics(t *testing.T) {
	html := `<html><head>
		<title>Widget Guide</title>
		<script type="application/ld+json">{"@type":"Article"}</script>
		<script type="application/ld+json">{"@type":"BreadcrumbList"}</script>
	</head><body>
		<nav>Home About Pricing Contact Blog Careers</nav>
		<main><h1>The Widget Guide</h1><p>one two three four five six seven eight nine ten</p></main>
		<footer>Copyright words that should not count</footer>
	</body></html>`

	res := Extract(snapFor(html))

	if res.Title != "Widget Guide" {
		t.Errorf("Title = %q", res.Title)
	}
	if res.H1 != "The Widget Guide" {
		t.Errorf("H1 = %q", res.H1)
	}
	if res.StructuredDataCount != 2 {
		t.Errorf("StructuredDataCount = %d, want 2", res.StructuredDataCount)
	}
	// Word count covers the main region only: heading (3 words) + body (10).
	if res.WordCount != 13 {
		t.Errorf("WordCount = %d, want 13 (nav/footer boilerplate excluded)", res.WordCount)
	}
}

func TestExtractStripsScriptsAndStyles(t *testing.T) {
	html := `<html><body><main>
		<p>visible words here</p>
		<script>var hidden = "lots of script text that is not content";</script>
		<style>.cls { color: red; }</style>
	</main></body></html>`

	res := Extract(snapFor(html))
	if res.WordCount != 3 {
		t.Errorf("WordCount = %d, want 3", res.WordCount)
	}
	if strings.Contains(res.ExtractedText, "hidden") {
		t.Error("script text leaked into extraction")
	}
}

func TestExtractFallsBackToBody(t *testing.T) {
	html := `<html><body><div><p>no main element on this page</p></div></body></html>`
	res := Extract(snapFor(html))
	if res.WordCount != 6 {
		t.Errorf("WordCount = %d, want 6", res.WordCount)
	}
}

func TestExtractSeparatesBlockText(t *testing.T) {
	html := `<html><body><main><h1>Alpha Guide</h1><p>beta gamma</p><ul><li>delta</li><li>epsilon</li></ul></main></body></html>`
	res := Extract(snapFor(html))

	want := "Alpha Guide beta gamma delta epsilon"
	if res.ExtractedText != want {
		t.Errorf("ExtractedText = %q, want %q", res.ExtractedText, want)
	}
	if res.WordCount != 6 {
		t.Errorf("WordCount = %d, want 6", res.WordCount)
	}
}

func TestDetectFAQ(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{
			"faqpage json-ld",
			`<html><head><script type="application/ld+json">{"@type":"FAQPage"}</script></head><body></body></html>`,
			true,
		},
		{
			"details summary pairs",
			`<html><body><details><summary>Q1</summary>A1</details><details><summary>Q2</summary>A2</details></body></html>`,
			true,
		},
		{
			"faq class",
			`<html><body><section class="faq-list"><p>q and a</p></section></body></html>`,
			true,
		},
		{
			"plain page",
			`<html><body><p>nothing here</p></body></html>`,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(snapFor(tt.html)).HasFAQ; got != tt.want {
				t.Errorf("HasFAQ = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnippetBounded(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	html := "<html><body><main><p>" + long + "</p></main></body></html>"
	res := Extract(snapFor(html))

	if len(res.Snippet) > snippetLength+4 {
		t.Errorf("snippet length = %d, want <= %d", len(res.Snippet), snippetLength+4)
	}
	if !strings.HasSuffix(res.Snippet, "…") {
		t.Error("truncated snippet should end with ellipsis")
	}
}

func TestSnippetRuneSafe(t *testing.T) {
	// Unbroken multibyte text forces the truncation path with no space to
	// cut on; the snippet must still be valid UTF-8.
	long := strings.Repeat("日本語のテキスト", 30)
	html := "<html><body><main><p>" + long + "</p></main></body></html>"
	res := Extract(snapFor(html))

	if !utf8.ValidString(res.Snippet) {
		t.Errorf("snippet is not valid UTF-8: %q", res.Snippet)
	}
	if !strings.HasSuffix(res.Snippet, "…") {
		t.Error("truncated snippet should end with ellipsis")
	}
	if len(res.Snippet) > snippetLength+len("…") {
		t.Errorf("snippet length = %d, want <= %d", len(res.Snippet), snippetLength+len("…"))
	}
}

func TestExtractEmptyHTML(t *testing.T) {
	res := Extract(snapFor(""))
	if res.WordCount != 0 || res.Title != "" || res.HasFAQ {
		t.Errorf("empty HTML should extract nothing: %+v", res)
	}
}
