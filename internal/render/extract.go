package render

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Selectors tried in order when locating the main content region. Falling
// through to body means word counts include boilerplate, which the last
// resort accepts.
var mainContentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#main-content",
	"#content",
	".main-content",
	".post-content",
	".entry-content",
}

// Boilerplate containers pruned before counting words.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "template", "iframe",
	"nav", "header", "footer", "aside", "form",
}

const snippetLength = 200

// Extract runs the uniform content extraction over a snapshot, regardless
// of which strategy produced it.
func Extract(snap *Snapshot) *Result {
	res := &Result{
		URL:        snap.URL,
		FinalURL:   snap.FinalURL,
		StatusCode: snap.StatusCode,
		HTML:       snap.HTML,
		LoadTime:   snap.LoadTime,
	}
	if snap.HTML == "" {
		return res
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return res
	}

	res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	res.H1 = strings.TrimSpace(doc.Find("h1").First().Text())
	res.StructuredDataCount = doc.Find(`script[type="application/ld+json"]`).Length()
	res.HasFAQ = detectFAQ(doc)

	res.ExtractedText = mainText(doc)
	res.WordCount = countWords(res.ExtractedText)
	res.Snippet = makeSnippet(res.ExtractedText)

	return res
}

// mainText extracts readable text from the page's main content region,
// with boilerplate containers removed so navigation chrome does not
// inflate word counts.
func mainText(doc *goquery.Document) string {
	doc.Find(strings.Join(boilerplateSelectors, ", ")).Remove()

	var region *goquery.Selection
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			region = s
			break
		}
	}
	if region == nil {
		region = doc.Find("body").First()
	}
	if region.Length() == 0 {
		return ""
	}

	// Collect text nodes with a separator between them: Selection.Text()
	// concatenates adjacent elements without one, merging words across tag
	// boundaries.
	var b strings.Builder
	for _, n := range region.Nodes {
		appendText(n, &b)
	}
	return normalizeWhitespace(b.String())
}

func appendText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(c, b)
	}
}

func detectFAQ(doc *goquery.Document) bool {
	// FAQPage structured data is the strong signal.
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "FAQPage") {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}

	// Markup heuristics: details/summary pairs or faq-named containers.
	if doc.Find("details summary").Length() >= 2 {
		return true
	}
	return doc.Find(`[class*="faq"], [id*="faq"]`).Length() > 0
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func makeSnippet(text string) string {
	if len(text) <= snippetLength {
		return text
	}
	end := snippetLength
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if i := strings.LastIndex(cut, " "); i > snippetLength/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
