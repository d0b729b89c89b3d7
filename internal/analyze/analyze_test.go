package analyze

import (
	"testing"

	"github.com/answerscope/answerscope/internal/store"
)

const articleHTML = `<!DOCTYPE html>
<html><head>
<title>How to Audit</title>
<meta name="author" content="Jane Smith">
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Article","headline":"How to Audit"}
</script>
<script type="application/ld+json">
{"@graph":[{"@type":"Organization"},{"@type":"WebSite"}]}
</script>
</head><body>
<h1>How to Audit</h1>
<h2>Step one</h2>
<h2>Step two</h2>
<h3>Details</h3>
<time datetime="2025-06-01">June 1, 2025</time>
<p>See <a href="https://www.w3.org/standards/">the standard</a> and
<a href="https://developer.mozilla.org/">MDN</a> plus <a href="/internal">us</a>.</p>
</body></html>`

func TestPageAnalysis(t *testing.T) {
	a := NewAnalyzer()
	pa := a.Page("aud1", &store.PageRecord{
		URL:  "https://example.com/guide",
		HTML: articleHTML,
	})

	if pa.Headings["h1"] != 1 || pa.Headings["h2"] != 2 || pa.Headings["h3"] != 1 {
		t.Errorf("headings = %v", pa.Headings)
	}
	if len(pa.HeadingTexts) != 4 {
		t.Errorf("heading texts = %v", pa.HeadingTexts)
	}

	wantTypes := map[string]bool{"Article": true, "Organization": true, "WebSite": true}
	if len(pa.SchemaTypes) != len(wantTypes) {
		t.Errorf("schema types = %v", pa.SchemaTypes)
	}
	for _, st := range pa.SchemaTypes {
		if !wantTypes[st] {
			t.Errorf("unexpected schema type %q", st)
		}
	}

	if !pa.HasAuthor {
		t.Error("author meta tag not detected")
	}
	if !pa.HasDate {
		t.Error("time[datetime] not detected")
	}
	if pa.OutboundLinks != 2 {
		t.Errorf("outbound links = %d, want 2 (internal link excluded)", pa.OutboundLinks)
	}
	if !pa.HasCitations {
		t.Error("two outbound links should count as citations")
	}
}

func TestPageAnalysisSparsePage(t *testing.T) {
	a := NewAnalyzer()
	pa := a.Page("aud1", &store.PageRecord{
		URL:  "https://example.com/",
		HTML: "<html><body><p>hello</p></body></html>",
	})

	if len(pa.Headings) != 0 {
		t.Errorf("headings = %v, want none", pa.Headings)
	}
	if pa.HasAuthor || pa.HasDate || pa.HasCitations {
		t.Errorf("sparse page should have no trust signals: %+v", pa)
	}
	if len(pa.SchemaTypes) != 0 {
		t.Errorf("schema types = %v", pa.SchemaTypes)
	}
}

func TestPageAnalysisEmptyHTML(t *testing.T) {
	a := NewAnalyzer()
	pa := a.Page("aud1", &store.PageRecord{URL: "https://example.com/broken"})
	if pa == nil {
		t.Fatal("failed pages still get an (empty) analysis")
	}
	if pa.OutboundLinks != 0 || pa.HasAuthor {
		t.Errorf("empty page analysis = %+v", pa)
	}
}

func TestSchemaTypeArrays(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
{"@type":["Product","Thing"]}
</script><script type="application/ld+json">not json</script></head><body></body></html>`

	a := NewAnalyzer()
	pa := a.Page("aud1", &store.PageRecord{URL: "https://example.com/p", HTML: html})
	if len(pa.SchemaTypes) != 2 {
		t.Errorf("schema types = %v, want [Product Thing]", pa.SchemaTypes)
	}
}

func TestAggregate(t *testing.T) {
	pages := []*store.PageRecord{
		{URL: "https://example.com/", StatusCode: 200, Title: "Home", H1: "Home", StructuredDataCount: 1},
		{URL: "https://example.com/about", StatusCode: 200, Title: "About", H1: "About"},
		{URL: "https://example.com/blog/post", StatusCode: 200, Title: "Post", H1: "Post", HasFAQ: true},
		{URL: "https://example.com/gone", StatusCode: 404},
		{URL: "https://example.com/down", Error: "connection refused"},
	}
	analyses := []*store.PageAnalysis{
		{URL: "https://example.com/", SchemaTypes: []string{"WebSite"}},
		{URL: "https://example.com/blog/post", SchemaTypes: []string{"Article", "WebSite"}, HasAuthor: true, HasDate: true, HasCitations: true},
	}

	facts := Aggregate(pages, analyses)

	if facts.PagesAnalyzed != 3 {
		t.Errorf("PagesAnalyzed = %d, want 3 (failed pages excluded)", facts.PagesAnalyzed)
	}
	if facts.PagesWithSchema != 1 || facts.PagesWithFAQ != 1 || facts.PagesWithH1 != 3 {
		t.Errorf("facts = %+v", facts)
	}
	if !facts.HasAboutOrContact {
		t.Error("about page not recognized")
	}
	if facts.PagesWithAuthor != 1 || facts.DatedPages != 1 || facts.CitingPages != 1 {
		t.Errorf("trust facts = %+v", facts)
	}
	if len(facts.SchemaTypes) != 2 {
		t.Errorf("SchemaTypes = %v, want deduped [WebSite Article]", facts.SchemaTypes)
	}
}
