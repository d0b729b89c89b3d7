// Package citation checks whether the audited domain shows up as a source in
// answer-engine search results. The querying strategy and the engine behind
// the endpoint stay behind the Connector interface; the pipeline only depends
// on the result shape.
package citation

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/answerscope/answerscope/internal/store"
)

// QueryResult is the outcome of one citation query.
type QueryResult struct {
	Query         string   `json:"query"`
	Success       bool     `json:"success"`
	Status        int      `json:"status"`
	TotalSources  int      `json:"total_sources"`
	DomainSources int      `json:"domain_sources"`
	DomainPaths   []string `json:"domain_paths,omitempty"`
}

// Connector produces and executes citation queries.
type Connector interface {
	// Queries builds a bounded list of search queries from the brand and the
	// crawled page summaries.
	Queries(brand string, pages []*store.PageRecord) []string
	// Run executes the queries. Implementations must bound concurrency and
	// degrade to empty results rather than erroring when the backing service
	// is unavailable.
	Run(ctx context.Context, queries []string) []QueryResult
}

const maxQueries = 5

// BuildQueries derives up to maxQueries search queries from the brand name
// and the most substantial crawled pages. Shared by connector
// implementations.
func BuildQueries(brand string, pages []*store.PageRecord) []string {
	queries := []string{
		fmt.Sprintf("what is %s", brand),
		fmt.Sprintf("%s reviews", brand),
	}

	// Headings of content-heavy pages make natural questions.
	for _, p := range pages {
		if len(queries) >= maxQueries {
			break
		}
		if p.Error != "" || p.H1 == "" || p.WordCount < 100 {
			continue
		}
		if isHomePage(p.URL) {
			continue
		}
		q := strings.TrimSpace(p.H1)
		if q != "" && !contains(queries, q) {
			queries = append(queries, q)
		}
	}
	return queries
}

// Summarize folds query results into the totals the audit row stores.
func Summarize(results []QueryResult) (total, cited int, paths []string) {
	seen := map[string]bool{}
	for _, r := range results {
		if !r.Success {
			continue
		}
		total++
		if r.DomainSources > 0 {
			cited++
		}
		for _, p := range r.DomainPaths {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return total, cited, paths
}

func isHomePage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Path == "" || u.Path == "/"
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// NopConnector is used when no citation backend is configured. It produces
// no queries and no results, so scoring sees absent citation data.
type NopConnector struct{}

func (NopConnector) Queries(string, []*store.PageRecord) []string { return nil }
func (NopConnector) Run(context.Context, []string) []QueryResult  { return nil }
