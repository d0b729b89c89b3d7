// Package analyze derives semantic facts from rendered page HTML: heading
// structure, schema.org types, authorship and freshness signals, and the
// link-based trust markers the scoring engine consumes.
package analyze

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/answerscope/answerscope/internal/store"
)

// Analyzer computes page analyses from stored HTML.
type Analyzer struct {
	now func() time.Time
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{now: time.Now}
}

// Page analyzes one rendered page. Pages that failed to render (empty HTML)
// yield an analysis with zero facts rather than an error, so synthesis can
// treat every crawled URL uniformly.
func (a *Analyzer) Page(auditID string, page *store.PageRecord) *store.PageAnalysis {
	pa := &store.PageAnalysis{
		AuditID:    auditID,
		URL:        page.URL,
		Headings:   map[string]int{},
		AnalyzedAt: a.now(),
	}
	if page.HTML == "" {
		return pa
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return pa
	}

	for _, tag := range []string{"h1", "h2", "h3"} {
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			pa.Headings[tag]++
			if text := strings.TrimSpace(s.Text()); text != "" && len(pa.HeadingTexts) < maxHeadingTexts {
				pa.HeadingTexts = append(pa.HeadingTexts, text)
			}
		})
	}

	pa.SchemaTypes = schemaTypes(doc)
	pa.HasAuthor = hasAuthor(doc)
	pa.HasDate = hasDate(doc)
	pa.OutboundLinks = outboundLinks(doc, page.URL)
	pa.HasCitations = pa.OutboundLinks >= minCitationLinks

	return pa
}

const (
	maxHeadingTexts  = 30
	minCitationLinks = 2
)

// schemaTypes collects the @type values from every ld+json block, including
// @graph members. Malformed JSON blocks are skipped.
func schemaTypes(doc *goquery.Document) []string {
	seen := map[string]bool{}
	var types []string

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return
		}
		for _, t := range typesFromValue(raw) {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	})
	return types
}

func typesFromValue(v any) []string {
	var types []string
	switch val := v.(type) {
	case map[string]any:
		switch t := val["@type"].(type) {
		case string:
			types = append(types, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					types = append(types, s)
				}
			}
		}
		if graph, ok := val["@graph"].([]any); ok {
			for _, node := range graph {
				types = append(types, typesFromValue(node)...)
			}
		}
	case []any:
		for _, item := range val {
			types = append(types, typesFromValue(item)...)
		}
	}
	return types
}

func hasAuthor(doc *goquery.Document) bool {
	if doc.Find(`meta[name="author"]`).Length() > 0 {
		return true
	}
	if doc.Find(`meta[property="article:author"]`).Length() > 0 {
		return true
	}
	if doc.Find(`[rel="author"]`).Length() > 0 {
		return true
	}
	if doc.Find(`[itemprop="author"]`).Length() > 0 {
		return true
	}
	// Common author byline classes.
	return doc.Find(`[class*="author"], [class*="byline"]`).Length() > 0
}

func hasDate(doc *goquery.Document) bool {
	if doc.Find("time[datetime]").Length() > 0 {
		return true
	}
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[property="article:modified_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	} {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// outboundLinks counts anchors pointing off the page's host.
func outboundLinks(doc *goquery.Document, pageURL string) int {
	base, err := url.Parse(pageURL)
	if err != nil {
		return 0
	}
	count := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(u)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host != "" && !strings.EqualFold(resolved.Host, base.Host) {
			count++
		}
	})
	return count
}

// SiteFacts aggregates per-page analyses into site-level signals.
type SiteFacts struct {
	PagesAnalyzed     int
	PagesWithSchema   int
	PagesWithFAQ      int
	PagesWithAuthor   int
	DatedPages        int
	PagesWithH1       int
	CitingPages       int
	HasAboutOrContact bool
	SchemaTypes       []string
}

// Aggregate folds page records and analyses into site facts. Records and
// analyses are matched by URL; a page without an analysis only contributes
// its render-time facts.
func Aggregate(pages []*store.PageRecord, analyses []*store.PageAnalysis) *SiteFacts {
	facts := &SiteFacts{}
	byURL := make(map[string]*store.PageAnalysis, len(analyses))
	for _, pa := range analyses {
		byURL[pa.URL] = pa
	}
	typeSeen := map[string]bool{}

	for _, p := range pages {
		if p.Error != "" || p.StatusCode >= 400 {
			continue
		}
		facts.PagesAnalyzed++
		if p.StructuredDataCount > 0 {
			facts.PagesWithSchema++
		}
		if p.HasFAQ {
			facts.PagesWithFAQ++
		}
		if p.H1 != "" {
			facts.PagesWithH1++
		}
		if isAboutOrContact(p.URL) {
			facts.HasAboutOrContact = true
		}
		pa, ok := byURL[p.URL]
		if !ok {
			continue
		}
		if pa.HasAuthor {
			facts.PagesWithAuthor++
		}
		if pa.HasDate {
			facts.DatedPages++
		}
		if pa.HasCitations {
			facts.CitingPages++
		}
		for _, t := range pa.SchemaTypes {
			if !typeSeen[t] {
				typeSeen[t] = true
				facts.SchemaTypes = append(facts.SchemaTypes, t)
			}
		}
	}
	return facts
}

func isAboutOrContact(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(strings.Trim(u.Path, "/"))
	switch p {
	case "about", "about-us", "contact", "contact-us", "company", "team":
		return true
	}
	return false
}
