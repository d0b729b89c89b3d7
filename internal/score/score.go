// Package score converts crawl observations into category scores and one
// weighted overall percentage. Everything here is a pure function of its
// inputs so results are reproducible for a given audit.
package score

import (
	"math"
	"strings"
	"time"

	"github.com/answerscope/answerscope/internal/analyze"
	"github.com/answerscope/answerscope/internal/store"
)

// Category point budgets.
const (
	crawlabilityBudget  = 42.0
	structuredBudget    = 30.0
	answerabilityBudget = 20.0
	trustBudget         = 10.0
)

// Category weights for the overall percentage.
const (
	crawlabilityWeight  = 0.4
	structuredWeight    = 0.3
	answerabilityWeight = 0.2
	trustWeight         = 0.1
)

// Signal thresholds. Named so behavior is testable in isolation.
const (
	minWordCount     = 300             // words for full answerability content credit
	goodCoverage     = 0.8             // fraction of pages for full coverage credit
	goodSuccessRate  = 0.8             // fetch success rate below which crawlability is penalized
	renderTimeTarget = 3 * time.Second // average load time for full speed credit
	criticalPenalty  = 2.0             // overall percentage points deducted per critical issue
	maxIssuePenalty  = 10.0
)

// Crawlability sub-budgets (sum = crawlabilityBudget).
const (
	robotsPoints    = 8.0
	botAccessPoints = 14.0
	sitemapPoints   = 8.0
	successPoints   = 12.0
)

// Structured-data sub-budgets (sum = structuredBudget).
const (
	schemaCoveragePoints = 12.0
	keyTypePoints        = 2.0 // per key schema type, capped
	keyTypesMax          = 6.0
	faqPoints            = 6.0
	h1CoveragePoints     = 6.0
)

// Answerability sub-budgets (sum = answerabilityBudget).
const (
	wordCountPoints = 8.0
	titlePoints     = 4.0
	speedPoints     = 4.0
	citationPoints  = 4.0
)

// Trust sub-budgets (sum = trustBudget).
const (
	authorPoints       = 3.0
	datePoints         = 3.0
	aboutContactPoints = 2.0
	outboundRefPoints  = 2.0
)

// Schema types that carry extra weight for answer engines.
var keySchemaTypes = []string{"Organization", "WebSite", "Article", "BlogPosting", "FAQPage", "Product", "HowTo"}

// CrawlFacts are the site-level crawlability observations gathered during the
// robots and sitemap phases.
type CrawlFacts struct {
	RobotsPresent bool
	BotsAllowed   int
	BotsChecked   int
	SitemapFound  bool
}

// CitationFacts summarize the citation connector's results. A nil value means
// the connector was unavailable or skipped; that scores zero, never errors.
type CitationFacts struct {
	Total int
	Cited int
}

// Input is everything the scoring engine consumes.
type Input struct {
	Pages     []*store.PageRecord
	Analyses  []*store.PageAnalysis
	Issues    []*store.Issue
	Crawl     CrawlFacts
	Citations *CitationFacts
}

// Compute maps the input to four category percentages and the weighted
// overall. Pure and deterministic; all outputs are within [0, 100].
func Compute(in Input) store.Scores {
	facts := analyze.Aggregate(in.Pages, in.Analyses)

	crawlability := crawlabilityScore(in)
	structured := structuredScore(facts)
	answerability := answerabilityScore(in, facts)
	trust := trustScore(facts)

	overall := crawlability*crawlabilityWeight +
		structured*structuredWeight +
		answerability*answerabilityWeight +
		trust*trustWeight

	overall -= issuePenalty(in.Issues)

	return store.Scores{
		Overall:       round1(clampPct(overall)),
		Crawlability:  round1(clampPct(crawlability)),
		Structured:    round1(clampPct(structured)),
		Answerability: round1(clampPct(answerability)),
		Trust:         round1(clampPct(trust)),
	}
}

func crawlabilityScore(in Input) float64 {
	pts := 0.0
	if in.Crawl.RobotsPresent {
		pts += robotsPoints
	}
	if in.Crawl.BotsChecked > 0 {
		pts += botAccessPoints * float64(in.Crawl.BotsAllowed) / float64(in.Crawl.BotsChecked)
	}
	if in.Crawl.SitemapFound {
		pts += sitemapPoints
	}

	rate := successRate(in.Pages)
	if rate >= goodSuccessRate {
		pts += successPoints
	} else {
		pts += successPoints * rate / goodSuccessRate
	}
	return pts / crawlabilityBudget * 100
}

func structuredScore(facts *analyze.SiteFacts) float64 {
	if facts.PagesAnalyzed == 0 {
		return 0
	}
	pts := 0.0

	coverage := float64(facts.PagesWithSchema) / float64(facts.PagesAnalyzed)
	pts += schemaCoveragePoints * math.Min(coverage/goodCoverage, 1)

	key := 0.0
	for _, want := range keySchemaTypes {
		for _, have := range facts.SchemaTypes {
			if strings.EqualFold(want, have) {
				key += keyTypePoints
				break
			}
		}
	}
	pts += math.Min(key, keyTypesMax)

	if facts.PagesWithFAQ > 0 {
		pts += faqPoints
	}
	pts += h1CoveragePoints * float64(facts.PagesWithH1) / float64(facts.PagesAnalyzed)

	return pts / structuredBudget * 100
}

func answerabilityScore(in Input, facts *analyze.SiteFacts) float64 {
	if facts.PagesAnalyzed == 0 {
		return 0
	}
	pts := 0.0

	var words, titled int
	var load time.Duration
	for _, p := range in.Pages {
		if p.Error != "" || p.StatusCode >= 400 {
			continue
		}
		words += p.WordCount
		load += p.LoadTime
		if p.Title != "" {
			titled++
		}
	}
	avgWords := float64(words) / float64(facts.PagesAnalyzed)
	pts += wordCountPoints * math.Min(avgWords/minWordCount, 1)

	pts += titlePoints * float64(titled) / float64(facts.PagesAnalyzed)

	avgLoad := load / time.Duration(facts.PagesAnalyzed)
	if avgLoad <= renderTimeTarget {
		pts += speedPoints
	} else {
		pts += speedPoints * float64(renderTimeTarget) / float64(avgLoad)
	}

	if in.Citations != nil && in.Citations.Total > 0 {
		pts += citationPoints * float64(in.Citations.Cited) / float64(in.Citations.Total)
	}

	return pts / answerabilityBudget * 100
}

func trustScore(facts *analyze.SiteFacts) float64 {
	if facts.PagesAnalyzed == 0 {
		return 0
	}
	pts := 0.0
	n := float64(facts.PagesAnalyzed)

	pts += authorPoints * math.Min(float64(facts.PagesWithAuthor)/n/goodCoverage, 1)
	pts += datePoints * math.Min(float64(facts.DatedPages)/n/goodCoverage, 1)
	if facts.HasAboutOrContact {
		pts += aboutContactPoints
	}
	pts += outboundRefPoints * math.Min(float64(facts.CitingPages)/n/goodCoverage, 1)

	return pts / trustBudget * 100
}

func issuePenalty(issues []*store.Issue) float64 {
	penalty := 0.0
	for _, is := range issues {
		if is.Severity == store.SeverityCritical {
			penalty += criticalPenalty
		}
	}
	return math.Min(penalty, maxIssuePenalty)
}

func successRate(pages []*store.PageRecord) float64 {
	if len(pages) == 0 {
		return 0
	}
	ok := 0
	for _, p := range pages {
		if p.Error == "" && p.StatusCode > 0 && p.StatusCode < 400 {
			ok++
		}
	}
	return float64(ok) / float64(len(pages))
}

func clampPct(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
